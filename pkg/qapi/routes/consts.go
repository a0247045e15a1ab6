package routes

var (
	BearerAuth = []map[string][]string{
		{"bearer": {}},
	}
)

type Tag string

const (
	TagHealth  Tag = "health"
	TagBatches Tag = "batches"
)

func (t Tag) String() string { return string(t) }
