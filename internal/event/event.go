// Package event defines the envelope produced by a feed adapter and
// consumed by the engine's event-drain phase. Events are immutable once
// enqueued; nothing downstream of the adapter ever mutates one in place.
package event

// MDMode is the feed's reported market-data mode.
type MDMode int

const (
	MDUnknown MDMode = iota
	MDRealtime
	MDDelayed
	MDFrozen
	MDNone
)

func (m MDMode) String() string {
	switch m {
	case MDRealtime:
		return "Realtime"
	case MDDelayed:
		return "Delayed"
	case MDFrozen:
		return "Frozen"
	case MDNone:
		return "None"
	default:
		return "Unknown"
	}
}

// Kind tags which variant an Event holds.
type Kind int

const (
	KindStatus Kind = iota
	KindQuote
	KindAdapterError
)

// Status reports a change in feed connectivity or market-data mode.
type Status struct {
	Connected bool
	MDMode    MDMode
	Reason    string // empty if none
	MonoNS    uint64
	UnixMS    uint64
}

// Quote reports a new top-of-book observation. Size and last-trade fields
// are optional; a zero value paired with the corresponding Has* flag false
// means "absent", per the snapshot invariant that quote fields are present
// or absent together.
type Quote struct {
	Bid, Ask      float64
	HasBid        bool
	HasAsk        bool
	Last          float64
	HasLast       bool
	BidSize       uint64
	HasBidSize    bool
	AskSize       uint64
	HasAskSize    bool
	RecvMonoNS    uint64
	RecvUnixMS    uint64
	ExchUnixMS    uint64
	HasExchUnixMS bool
}

// AdapterError reports a non-fatal error observed by the adapter.
type AdapterError struct {
	Code    int
	Message string
	MonoNS  uint64
	UnixMS  uint64
}

// Event is a tagged union over {Status, Quote, AdapterError}. Exactly one
// of the Status/Quote/Err fields is meaningful, selected by Kind.
type Event struct {
	Kind   Kind
	Status Status
	Quote  Quote
	Err    AdapterError
}

// NewStatus constructs a Status event.
func NewStatus(s Status) Event { return Event{Kind: KindStatus, Status: s} }

// NewQuote constructs a Quote event.
func NewQuote(q Quote) Event { return Event{Kind: KindQuote, Quote: q} }

// NewAdapterError constructs an AdapterError event.
func NewAdapterError(e AdapterError) Event { return Event{Kind: KindAdapterError, Err: e} }
