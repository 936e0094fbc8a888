package analytics

import "sort"

// Kind is the type of a scheduled entry.
type Kind string

const (
	KindVMResource Kind = "vm_resource"
	KindExecutable Kind = "executable"
	KindDropFile   Kind = "drop_file"
	KindInstall    Kind = "install"
)

// Entry is one scheduled action on a guest. Negative times run before the
// experiment starts.
type Entry struct {
	Time        int    `yaml:"time"`
	Kind        Kind   `yaml:"kind"`
	Name        string `yaml:"name"`
	Args        string `yaml:"args,omitempty"`
	Destination string `yaml:"destination,omitempty"`
	Executable  bool   `yaml:"executable,omitempty"`
}

// Node collects the schedule of one guest.
type Node struct {
	Name    string
	entries []Entry
}

// NewNode returns an empty schedule for the named guest.
func NewNode(name string) *Node {
	return &Node{Name: name}
}

func (n *Node) add(e Entry) {
	n.entries = append(n.entries, e)
}

// AddVMResource schedules a resource run with args as its input.
func (n *Node) AddVMResource(time int, name, args string) {
	n.add(Entry{Time: time, Kind: KindVMResource, Name: name, Args: args})
}

// RunExecutable schedules program with args.
func (n *Node) RunExecutable(time int, program, args string) {
	n.add(Entry{Time: time, Kind: KindExecutable, Name: program, Args: args})
}

// DropFile schedules copying name to dest on the guest.
func (n *Node) DropFile(time int, dest, name string, executable bool) {
	n.add(Entry{Time: time, Kind: KindDropFile, Name: name, Destination: dest, Executable: executable})
}

// Install schedules a package installation.
func (n *Node) Install(time int, pkg string) {
	n.add(Entry{Time: time, Kind: KindInstall, Name: pkg})
}

// Schedule returns the entries ordered by time, ties in insertion order.
func (n *Node) Schedule() []Entry {
	out := append([]Entry(nil), n.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
