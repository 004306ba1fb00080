package boundary

// Inbound is a channel the UI may call.
type Inbound int

const (
	inboundInvalid Inbound = iota
	// InboundToWorker forwards an opaque command payload to the worker.
	InboundToWorker
	// InboundSelectDirectory opens the native directory picker.
	InboundSelectDirectory
	// InboundSelectTorrentFile opens the native file picker filtered to
	// TorrentExt.
	InboundSelectTorrentFile
	numInbound
)

// Outbound is a channel the host pushes to the UI.
type Outbound int

const (
	outboundInvalid Outbound = iota
	// OutboundWorkerData carries every worker record, untransformed.
	OutboundWorkerData
	// OutboundWorkerStatus carries host-originated worker lifecycle state.
	OutboundWorkerStatus
	numOutbound
)

// TorrentExt is the extension filter of InboundSelectTorrentFile.
const TorrentExt = ".torrent"

var inboundNames = [...]string{
	InboundToWorker:          "to-worker",
	InboundSelectDirectory:   "select-directory",
	InboundSelectTorrentFile: "select-torrent-file",
}

var outboundNames = [...]string{
	OutboundWorkerData:   "worker-data",
	OutboundWorkerStatus: "worker-status",
}

// One name per channel: adding a channel without a name, or a name without
// a channel, fails to compile.
var (
	_ [len(inboundNames) - int(numInbound)]struct{}
	_ [int(numInbound) - len(inboundNames)]struct{}
	_ [len(outboundNames) - int(numOutbound)]struct{}
	_ [int(numOutbound) - len(outboundNames)]struct{}
)

// String returns the wire name.
func (c Inbound) String() string {
	if c <= inboundInvalid || c >= numInbound {
		return ""
	}
	return inboundNames[c]
}

// Valid reports whether c is a declared inbound channel.
func (c Inbound) Valid() bool {
	return c > inboundInvalid && c < numInbound
}

// Forwarding reports whether c carries payloads to the worker rather than
// being handled by the host.
func (c Inbound) Forwarding() bool {
	return c == InboundToWorker
}

// String returns the wire name.
func (c Outbound) String() string {
	if c <= outboundInvalid || c >= numOutbound {
		return ""
	}
	return outboundNames[c]
}

// Valid reports whether c is a declared outbound channel.
func (c Outbound) Valid() bool {
	return c > outboundInvalid && c < numOutbound
}

// ParseInbound looks up an inbound channel by exact wire name.
func ParseInbound(name string) (Inbound, bool) {
	for c := inboundInvalid + 1; c < numInbound; c++ {
		if inboundNames[c] == name {
			return c, true
		}
	}
	return inboundInvalid, false
}

// ParseOutbound looks up an outbound channel by exact wire name.
func ParseOutbound(name string) (Outbound, bool) {
	for c := outboundInvalid + 1; c < numOutbound; c++ {
		if outboundNames[c] == name {
			return c, true
		}
	}
	return outboundInvalid, false
}

// InboundChannels lists every inbound channel in declaration order.
func InboundChannels() []Inbound {
	out := make([]Inbound, 0, numInbound-1)
	for c := inboundInvalid + 1; c < numInbound; c++ {
		out = append(out, c)
	}
	return out
}

// OutboundChannels lists every outbound channel in declaration order.
func OutboundChannels() []Outbound {
	out := make([]Outbound, 0, numOutbound-1)
	for c := outboundInvalid + 1; c < numOutbound; c++ {
		out = append(out, c)
	}
	return out
}
