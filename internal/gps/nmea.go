package gps

import (
	"bufio"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// NMEASource streams fixes parsed from NMEA 0183 sentences on a UART GPS.
// Works with u-blox NEO-M8N and any standard NMEA receiver. A fix is emitted
// per valid RMC sentence; GGA sentences update altitude and dilution so the
// next fix carries them.
type NMEASource struct {
	portPath string
	baudRate int

	mu     sync.Mutex
	port   serial.Port
	ch     chan Fix
	closed bool

	altitude *float64
	hdop     float64
}

// horizontalUERE is the assumed per-satellite range error used to turn HDOP
// into an accuracy estimate in meters.
const horizontalUERE = 5.0

func NewNMEASource(portPath string, baudRate int) *NMEASource {
	if baudRate == 0 {
		baudRate = 9600
	}
	return &NMEASource{
		portPath: portPath,
		baudRate: baudRate,
		ch:       make(chan Fix, 16),
		hdop:     1.0,
	}
}

// Open connects to the serial port and starts the read loop.
func (n *NMEASource) Open() error {
	mode := &serial.Mode{
		BaudRate: n.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(n.portPath, mode)
	if err != nil {
		return fmt.Errorf("gps: open %s: %w", n.portPath, err)
	}
	port.SetReadTimeout(200 * time.Millisecond)

	n.mu.Lock()
	n.port = port
	n.mu.Unlock()

	log.Printf("[gps] reading NMEA from %s at %d baud", n.portPath, n.baudRate)
	go n.readLoop(port)
	return nil
}

func (n *NMEASource) Positions() <-chan Fix { return n.ch }

// Stop closes the port, which unblocks the read loop, and closes the fix
// channel so downstream consumers terminate.
func (n *NMEASource) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var err error
	if n.port != nil {
		err = n.port.Close()
		n.port = nil
	}
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
	return err
}

// portReader retries timed-out reads. The port returns (0, nil) when no
// byte arrived within the read timeout; fed straight to bufio.Scanner that
// accumulates into io.ErrNoProgress and an idle receiver would kill the
// stream. A closed port surfaces as an error and ends the retry loop.
type portReader struct {
	port serial.Port
}

func (r portReader) Read(p []byte) (int, error) {
	for {
		n, err := r.port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (n *NMEASource) readLoop(port serial.Port) {
	scanner := bufio.NewScanner(portReader{port: port})
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") || !validChecksum(line) {
			continue
		}
		switch {
		case strings.HasPrefix(line, "$GPGGA"), strings.HasPrefix(line, "$GNGGA"):
			n.applyGGA(line)
		case strings.HasPrefix(line, "$GPRMC"), strings.HasPrefix(line, "$GNRMC"):
			if fix, ok := n.parseRMC(line); ok {
				n.emit(fix)
			}
		}
	}

	// Unrecoverable read error without an explicit Stop.
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.port != nil {
		_ = n.port.Close()
		n.port = nil
	}
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
}

func (n *NMEASource) emit(f Fix) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- f:
	default:
		// Consumer lagging; the newest fix matters more than a backlog.
	}
}

// parseRMC extracts a fix from a recommended-minimum sentence.
// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,knots,track,ddmmyy,...
func (n *NMEASource) parseRMC(line string) (Fix, bool) {
	parts := splitSentence(line)
	if len(parts) < 10 || parts[2] != "A" {
		return Fix{}, false
	}

	fix := Fix{
		Lat:  parseCoord(parts[3], parts[4]),
		Lon:  parseCoord(parts[5], parts[6]),
		Time: parseRMCTime(parts[9], parts[1]),
	}
	if knots, err := strconv.ParseFloat(parts[7], 64); err == nil {
		mps := knots * 0.514444
		fix.Speed = &mps
	}
	if track, err := strconv.ParseFloat(parts[8], 64); err == nil {
		fix.Bearing = &track
	}

	n.mu.Lock()
	fix.Accuracy = n.hdop * horizontalUERE
	fix.Altitude = n.altitude
	n.mu.Unlock()

	return fix, true
}

// applyGGA records altitude and HDOP for subsequent fixes.
// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,q,sats,hdop,alt,M,...
func (n *NMEASource) applyGGA(line string) {
	parts := splitSentence(line)
	if len(parts) < 10 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if hdop, err := strconv.ParseFloat(parts[8], 64); err == nil && hdop > 0 {
		n.hdop = hdop
	}
	if alt, err := strconv.ParseFloat(parts[9], 64); err == nil {
		n.altitude = &alt
	}
}

// splitSentence splits a sentence on commas after stripping the leading $
// and the *hh checksum suffix.
func splitSentence(line string) []string {
	if idx := strings.Index(line, "*"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimPrefix(line, "$")
	return strings.Split(line, ",")
}

// parseCoord converts NMEA ddmm.mmmm format to decimal degrees.
func parseCoord(raw, dir string) float64 {
	if raw == "" || dir == "" {
		return 0
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	deg := math.Floor(val / 100)
	result := deg + (val-deg*100)/60
	if dir == "S" || dir == "W" {
		result = -result
	}
	return result
}

// parseRMCTime combines the ddmmyy and hhmmss.ss fields into a UTC instant.
// Falls back to the wall clock when the receiver omits either field.
func parseRMCTime(date, clock string) time.Time {
	if len(date) != 6 || len(clock) < 6 {
		return time.Now().UTC()
	}
	t, err := time.Parse("020106 150405", date+" "+clock[:6])
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

// validChecksum checks the XOR checksum after *.
func validChecksum(line string) bool {
	idx := strings.Index(line, "*")
	if idx < 0 || idx+3 > len(line) {
		return false
	}
	var calc byte
	for i := 1; i < idx; i++ {
		calc ^= line[i]
	}
	expected, err := strconv.ParseUint(line[idx+1:idx+3], 16, 8)
	if err != nil {
		return false
	}
	return byte(expected) == calc
}
