package autodial

// Dialer holds the private pull-list of an auto-dial run. The list is a
// copy taken at activation, so later queue changes do not reorder it.
type Dialer struct {
	active    bool
	remaining []string
}

func New() *Dialer { return &Dialer{} }

// Start activates auto-dial over ids. An empty list leaves the dialer
// inactive and returns false.
func (d *Dialer) Start(ids []string) bool {
	if len(ids) == 0 {
		d.Stop()
		return false
	}
	d.remaining = append(make([]string, 0, len(ids)), ids...)
	d.active = true
	return true
}

// Next pops the head of the pull-list. When the list is exhausted the
// dialer deactivates itself.
func (d *Dialer) Next() (string, bool) {
	if !d.active || len(d.remaining) == 0 {
		d.Stop()
		return "", false
	}
	id := d.remaining[0]
	d.remaining = d.remaining[1:]
	return id, true
}

func (d *Dialer) Stop() {
	d.active = false
	d.remaining = nil
}

func (d *Dialer) Active() bool { return d.active }

func (d *Dialer) Remaining() []string {
	return append([]string(nil), d.remaining...)
}
