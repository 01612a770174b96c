package netbox

// NetBox API response shapes used by the inventory reader. These
// mirror the subset of the NetBox v4 REST API this program reads
// from and writes to (tags and journal entries only).

// nbIPRef is an embedded reference to an assigned IP address.
type nbIPRef struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
}

// nbDevice is a NetBox dcim/devices/ entry.
type nbDevice struct {
	ID     int       `json:"id"`
	Name   string    `json:"name"`
	OOBIP  *nbIPRef  `json:"oob_ip,omitempty"`
	Tags   []nbTag   `json:"tags,omitempty"`
	Status *nbChoice `json:"status,omitempty"`
}

type nbChoice struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// nbInterface is a NetBox dcim/interfaces/ entry.
type nbInterface struct {
	ID         int        `json:"id"`
	Device     *nbDevRef  `json:"device,omitempty"`
	Name       string     `json:"name"`
	MACAddress string     `json:"mac_address,omitempty"`
	Cable      *nbCableID `json:"cable,omitempty"`
}

type nbDevRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type nbCableID struct {
	ID int `json:"id"`
}

// nbCable is a NetBox dcim/cables/ entry; terminations reference the
// interfaces (or other termination types) at each end.
type nbCable struct {
	ID            int                 `json:"id"`
	ATerminations []nbCableTermination `json:"a_terminations"`
	BTerminations []nbCableTermination `json:"b_terminations"`
}

type nbCableTermination struct {
	ObjectID   int    `json:"object_id"`
	ObjectType string `json:"object_type"`
}

// nbSwitchDevice is the subset of device fields needed to enumerate
// switches for SNMP collection.
type nbSwitchDevice struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	PrimaryIP4 *nbIPRef `json:"primary_ip4,omitempty"`
	PrimaryIP  *nbIPRef `json:"primary_ip,omitempty"`
}

type nbTag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type nbIPAddress struct {
	ID                 int    `json:"id"`
	Address            string `json:"address"`
	AssignedObjectID   int    `json:"assigned_object_id,omitempty"`
	AssignedObjectType string `json:"assigned_object_type,omitempty"`
}

// listResponse is the generic paginated NetBox list envelope.
type listResponse[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next,omitempty"`
	Results []T    `json:"results"`
}

// journalEntryRequest creates an extras/journal-entries/ row.
type journalEntryRequest struct {
	AssignedObjectType string `json:"assigned_object_type"`
	AssignedObjectID   int    `json:"assigned_object_id"`
	Kind               string `json:"kind"`
	Comments           string `json:"comments"`
}
