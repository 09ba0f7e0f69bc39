package model

// ConnectionRecord is one parsed line of the traffic source
type ConnectionRecord struct {
	Source    string   `json:"source"`
	Port      int      `json:"port"`
	RawFields []string `json:"raw_fields,omitempty"`
}

// PortSet is the set of ports considered suspicious
type PortSet map[int]struct{}

// NewPortSet builds a set from the given ports
func NewPortSet(ports ...int) PortSet {
	set := make(PortSet, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return set
}

// PortRange returns every port in [from, to] except the excluded ones
func PortRange(from, to int, exclude ...int) PortSet {
	skip := NewPortSet(exclude...)
	set := make(PortSet)
	for p := from; p <= to; p++ {
		if _, ok := skip[p]; ok {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

func (s PortSet) Contains(port int) bool {
	_, ok := s[port]
	return ok
}

func (s PortSet) Len() int {
	return len(s)
}
