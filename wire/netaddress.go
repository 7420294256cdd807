package wire

import (
	"io"
	"net"

	"github.com/pkg/errors"
)

// ServiceFlag identifies services supported by a peer.
type ServiceFlag uint64

// SFNodeNetwork is the flag used to indicate a peer is a full node.
const SFNodeNetwork ServiceFlag = 1 << 0

// NetAddress advertises one peer's reachable (IP, port, services,
// timestamp) tuple, used in version handshakes and addr exchange
// (spec.md §4.7).
type NetAddress struct {
	Timestamp int64
	Services  ServiceFlag
	IP        net.IP
	Port      uint16
}

// NewNetAddressIPPort builds a NetAddress for ip:port.
func NewNetAddressIPPort(ip net.IP, port uint16, services ServiceFlag) *NetAddress {
	return &NetAddress{IP: ip, Port: port, Services: services}
}

func writeNetAddress(w io.Writer, na *NetAddress) error {
	if err := writeUint64(w, uint64(na.Timestamp)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(na.Services)); err != nil {
		return err
	}
	ip16 := na.IP.To16()
	if ip16 == nil {
		ip16 = make(net.IP, 16)
	}
	if _, err := w.Write(ip16); err != nil {
		return err
	}
	return writeUint32(w, uint32(na.Port))
}

func readNetAddress(r io.Reader) (*NetAddress, error) {
	ts, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	services, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	ip := make([]byte, 16)
	if _, err := io.ReadFull(r, ip); err != nil {
		return nil, err
	}
	port, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if port > 0xffff {
		return nil, errors.New("invalid port in network address")
	}
	return &NetAddress{
		Timestamp: int64(ts),
		Services:  ServiceFlag(services),
		IP:        net.IP(ip),
		Port:      uint16(port),
	}, nil
}
