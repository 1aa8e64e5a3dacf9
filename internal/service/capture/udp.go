package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"gocv.io/x/gocv"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

const maxFrameSize = 4 << 20

// jpegAssembler rebuilds JPEG frames that a camera pushes split across UDP packets.
type jpegAssembler struct {
	buf bytes.Buffer
}

// Feed adds one packet and returns a complete frame when the packet ends one.
func (a *jpegAssembler) Feed(packet []byte) ([]byte, bool) {
	if bytes.HasPrefix(packet, jpegHeader) {
		a.buf.Reset()
	} else if a.buf.Len() == 0 {
		// middle of a frame whose start was lost
		return nil, false
	}
	a.buf.Write(packet)

	if a.buf.Len() > maxFrameSize {
		a.buf.Reset()
		return nil, false
	}
	if !bytes.HasSuffix(packet, jpegFooter) {
		return nil, false
	}
	frame := make([]byte, a.buf.Len())
	copy(frame, a.buf.Bytes())
	a.buf.Reset()
	return frame, true
}

// UDPSource listens on one port for a single camera's JPEG packets.
type UDPSource struct {
	conn      *net.UDPConn
	assembler jpegAssembler
	packet    []byte
}

func ListenUDP(address string) (*UDPSource, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return &UDPSource{conn: conn, packet: make([]byte, 65535)}, nil
}

func (u *UDPSource) Read(ctx context.Context, dst *gocv.Mat) (time.Time, error) {
	for {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		u.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := u.conn.ReadFromUDP(u.packet)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			continue
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("error reading UDP packet: %w", err)
		}

		data, ok := u.assembler.Feed(u.packet[:n])
		if !ok {
			continue
		}
		mat, err := gocv.IMDecode(data, gocv.IMReadColor)
		if err != nil {
			continue
		}
		if mat.Empty() {
			mat.Close()
			continue
		}
		mat.CopyTo(dst)
		mat.Close()
		return time.Now(), nil
	}
}

func (u *UDPSource) Live() bool {
	return true
}

func (u *UDPSource) Close() error {
	return u.conn.Close()
}
