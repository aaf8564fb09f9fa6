package cluster

// SelfID returns this node's id
func (m *Membership) SelfID() int {
	return m.self
}

// Self returns this node's identity
func (m *Membership) Self() NodeIdentity {
	n, _ := m.Lookup(m.self)
	return n
}

// Lookup returns the identity of a node by id
func (m *Membership) Lookup(id int) (NodeIdentity, error) {
	for _, n := range m.nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return NodeIdentity{}, ErrNodeNotFound
}

// All returns every member including self, ordered by id
func (m *Membership) All() []NodeIdentity {
	out := make([]NodeIdentity, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// Peers returns every member except self, ordered by id
func (m *Membership) Peers() []NodeIdentity {
	out := make([]NodeIdentity, 0, len(m.nodes)-1)
	for _, n := range m.nodes {
		if n.ID != m.self {
			out = append(out, n)
		}
	}
	return out
}

// Higher returns the members that outrank self, highest id first
func (m *Membership) Higher() []NodeIdentity {
	out := make([]NodeIdentity, 0)
	for i := len(m.nodes) - 1; i >= 0; i-- {
		if m.nodes[i].ID > m.self {
			out = append(out, m.nodes[i])
		}
	}
	return out
}

// HighestID returns the largest member id
func (m *Membership) HighestID() int {
	return m.nodes[len(m.nodes)-1].ID
}

// Size returns the number of members including self
func (m *Membership) Size() int {
	return len(m.nodes)
}
