package smp

// SetLocalIdentity installs the adapter's identity resolving key and public
// identity address, distributed to peers that request identity information.
// Without it a random IRK is generated on first use and the connection
// address doubles as the identity address.
func (m *Manager) SetLocalIdentity(irk, addr []byte, addrType byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(irk) != 16 {
		return newError(ReasonInvalidParameters, "irk must be 16 octets")
	}
	if len(addr) != 6 {
		return newError(ReasonInvalidParameters, "identity address must be 6 octets")
	}
	m.localIRK = append([]byte{}, irk...)
	m.identityAddr = append([]byte{}, addr...)
	m.identityAddrType = addrType
	return nil
}

// SetLocalCSRK installs the adapter's signing key. Generated on first use
// otherwise.
func (m *Manager) SetLocalCSRK(csrk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(csrk) != 16 {
		return newError(ReasonInvalidParameters, "csrk must be 16 octets")
	}
	m.localCSRK = append([]byte{}, csrk...)
	return nil
}

// LocalIRK returns the adapter IRK, generating one if necessary.
func (m *Manager) LocalIRK() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localIRKLocked()
}

func (m *Manager) localIRKLocked() ([]byte, error) {
	if m.localIRK == nil {
		b, err := m.sessionRandom(16)
		if err != nil {
			return nil, err
		}
		m.localIRK = b
	}
	return m.localIRK, nil
}

func (m *Manager) localCSRKLocked() ([]byte, error) {
	if m.localCSRK == nil {
		b, err := m.sessionRandom(16)
		if err != nil {
			return nil, err
		}
		m.localCSRK = b
	}
	return m.localCSRK, nil
}
