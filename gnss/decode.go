package gnss

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Message is a decoded UBX frame. String renders it as
// <UBX(NAME, field=value, ...)>.
type Message interface {
	fmt.Stringer
	Name() string
}

type msgKey struct{ class, id byte }

var names = map[msgKey]string{
	{0x01, 0x01}: "NAV-POSECEF",
	{0x01, 0x02}: "NAV-POSLLH",
	{0x01, 0x03}: "NAV-STATUS",
	{0x01, 0x04}: "NAV-DOP",
	{0x01, 0x07}: "NAV-PVT",
	{0x01, 0x12}: "NAV-VELNED",
	{0x01, 0x20}: "NAV-TIMEGPS",
	{0x01, 0x21}: "NAV-TIMEUTC",
	{0x01, 0x35}: "NAV-SAT",
	{0x02, 0x15}: "RXM-RAWX",
	{0x05, 0x00}: "ACK-NAK",
	{0x05, 0x01}: "ACK-ACK",
	{0x0A, 0x04}: "MON-VER",
	{0x0A, 0x09}: "MON-HW",
}

// Name returns the message name for a class and id, or a hex form for
// unknown messages.
func Name(class, id byte) string {
	if n, ok := names[msgKey{class, id}]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X-0x%02X", class, id)
}

type field struct {
	name  string
	value any
}

func render(name string, fields []field) string {
	var b strings.Builder
	b.WriteString("<UBX(")
	b.WriteString(name)
	for _, f := range fields {
		fmt.Fprintf(&b, ", %s=%v", f.name, f.value)
	}
	b.WriteString(")>")
	return b.String()
}

// NavPVT is the navigation position velocity time solution. String lists
// every field of the message, flag bits included, so consumers can address
// fields by position.
type NavPVT struct {
	ITOW          uint32
	Year          uint16
	Month, Day    uint8
	Hour, Min     uint8
	Sec           uint8
	Valid         uint8
	TAcc          uint32
	Nano          int32
	FixType       uint8
	Flags         uint8
	Flags2        uint8
	NumSV         uint8
	Lon, Lat      float64 // degrees
	Height, HMSL  int32   // mm
	HAcc, VAcc    uint32  // mm
	VelN          int32   // mm/s
	VelE          int32
	VelD          int32
	GSpeed        int32
	HeadMot       float64 // degrees
	SAcc, HeadAcc uint32
	PDOP          float64
	Flags3        uint16
	Reserved1     uint32
	HeadVeh       float64 // degrees
	MagDec        float64 // degrees
	MagAcc        float64 // degrees
}

func (NavPVT) Name() string { return "NAV-PVT" }

// FixOK reports the gnssFixOK flag.
func (p NavPVT) FixOK() bool { return p.Flags&0x01 != 0 }

func bit(v uint32, shift, width uint) uint32 {
	return (v >> shift) & (1<<width - 1)
}

func (p NavPVT) String() string {
	valid, flags, flags2, flags3 := uint32(p.Valid), uint32(p.Flags), uint32(p.Flags2), uint32(p.Flags3)
	return render(p.Name(), []field{
		{"iTOW", p.ITOW},
		{"year", p.Year},
		{"month", p.Month},
		{"day", p.Day},
		{"hour", p.Hour},
		{"min", p.Min},
		{"second", p.Sec},
		{"validDate", bit(valid, 0, 1)},
		{"validTime", bit(valid, 1, 1)},
		{"fullyResolved", bit(valid, 2, 1)},
		{"validMag", bit(valid, 3, 1)},
		{"tAcc", p.TAcc},
		{"nano", p.Nano},
		{"fixType", p.FixType},
		{"gnssFixOk", bit(flags, 0, 1)},
		{"diffSoln", bit(flags, 1, 1)},
		{"psmState", bit(flags, 2, 3)},
		{"headVehValid", bit(flags, 5, 1)},
		{"carrSoln", bit(flags, 6, 2)},
		{"confirmedAvai", bit(flags2, 5, 1)},
		{"confirmedDate", bit(flags2, 6, 1)},
		{"confirmedTime", bit(flags2, 7, 1)},
		{"numSV", p.NumSV},
		{"lon", fmt.Sprintf("%.7f", p.Lon)},
		{"lat", fmt.Sprintf("%.7f", p.Lat)},
		{"height", p.Height},
		{"hMSL", p.HMSL},
		{"hAcc", p.HAcc},
		{"vAcc", p.VAcc},
		{"velN", p.VelN},
		{"velE", p.VelE},
		{"velD", p.VelD},
		{"gSpeed", p.GSpeed},
		{"headMot", fmt.Sprintf("%.5f", p.HeadMot)},
		{"sAcc", p.SAcc},
		{"headAcc", p.HeadAcc},
		{"pDOP", fmt.Sprintf("%.2f", p.PDOP)},
		{"invalidLlh", bit(flags3, 0, 1)},
		{"lastCorrectionAge", bit(flags3, 1, 4)},
		{"reserved1", p.Reserved1},
		{"headVeh", fmt.Sprintf("%.5f", p.HeadVeh)},
		{"magDec", fmt.Sprintf("%.2f", p.MagDec)},
		{"magAcc", fmt.Sprintf("%.2f", p.MagAcc)},
	})
}

// NavStatus is the receiver navigation status.
type NavStatus struct {
	ITOW    uint32
	GPSFix  uint8
	Flags   uint8
	FixStat uint8
	Flags2  uint8
	TTFF    uint32 // ms
	MSSS    uint32 // ms
}

func (NavStatus) Name() string { return "NAV-STATUS" }

func (s NavStatus) String() string {
	flags, fixStat, flags2 := uint32(s.Flags), uint32(s.FixStat), uint32(s.Flags2)
	return render(s.Name(), []field{
		{"iTOW", s.ITOW},
		{"gpsFix", s.GPSFix},
		{"gpsFixOk", bit(flags, 0, 1)},
		{"diffSoln", bit(flags, 1, 1)},
		{"wknSet", bit(flags, 2, 1)},
		{"towSet", bit(flags, 3, 1)},
		{"diffCorr", bit(fixStat, 0, 1)},
		{"carrSolnValid", bit(fixStat, 1, 1)},
		{"mapMatching", bit(fixStat, 6, 2)},
		{"psmState", bit(flags2, 0, 2)},
		{"spoofDetState", bit(flags2, 3, 2)},
		{"carrSoln", bit(flags2, 6, 2)},
		{"ttff", s.TTFF},
		{"msss", s.MSSS},
	})
}

// Satellite is one entry of NAV-SAT.
type Satellite struct {
	GNSSID uint8
	SVID   uint8
	CNO    uint8
	Elev   int8
	Azim   int16
	PRRes  int16
	Flags  uint32
}

// NavSat lists the satellites in view. Every satellite renders as the same
// number of fields.
type NavSat struct {
	ITOW       uint32
	Version    uint8
	Reserved0  uint16
	Satellites []Satellite
}

func (NavSat) Name() string { return "NAV-SAT" }

var gnssIDs = map[uint8]string{
	0: "GPS",
	1: "SBAS",
	2: "Galileo",
	3: "BeiDou",
	4: "IMES",
	5: "QZSS",
	6: "GLONASS",
}

func (s NavSat) String() string {
	fields := []field{
		{"iTOW", s.ITOW},
		{"version", s.Version},
		{"numSvs", len(s.Satellites)},
		{"reserved0", s.Reserved0},
	}
	for i, sv := range s.Satellites {
		n := fmt.Sprintf("_%02d", i+1)
		id, ok := gnssIDs[sv.GNSSID]
		if !ok {
			id = fmt.Sprint(sv.GNSSID)
		}
		f := sv.Flags
		fields = append(fields,
			field{"gnssId" + n, id},
			field{"svId" + n, sv.SVID},
			field{"cno" + n, sv.CNO},
			field{"elev" + n, sv.Elev},
			field{"azim" + n, sv.Azim},
			field{"prRes" + n, fmt.Sprintf("%.1f", float64(sv.PRRes)/10)},
			field{"qualityInd" + n, bit(f, 0, 3)},
			field{"svUsed" + n, bit(f, 3, 1)},
			field{"health" + n, bit(f, 4, 2)},
			field{"diffCorr" + n, bit(f, 6, 1)},
			field{"smoothed" + n, bit(f, 7, 1)},
			field{"orbitSource" + n, bit(f, 8, 3)},
			field{"ephAvail" + n, bit(f, 11, 1)},
			field{"almAvail" + n, bit(f, 12, 1)},
			field{"anoAvail" + n, bit(f, 13, 1)},
			field{"aopAvail" + n, bit(f, 14, 1)},
			field{"sbasCorrUsed" + n, bit(f, 16, 1)},
			field{"rtcmCorrUsed" + n, bit(f, 17, 1)},
			field{"slasCorrUsed" + n, bit(f, 18, 1)},
			field{"spartnCorrUsed" + n, bit(f, 19, 1)},
			field{"prCorrUsed" + n, bit(f, 20, 1)},
			field{"crCorrUsed" + n, bit(f, 21, 1)},
			field{"doCorrUsed" + n, bit(f, 22, 1)},
		)
	}
	return render(s.Name(), fields)
}

// Raw is a frame without a dedicated decoder.
type Raw struct {
	Class, ID byte
	Payload   []byte
}

func (r Raw) Name() string { return Name(r.Class, r.ID) }

func (r Raw) String() string {
	return render(r.Name(), []field{{"payload", fmt.Sprintf("%x", r.Payload)}})
}

// Decode returns the typed message for f. Frames of a known type whose
// payload is too short decode to an error; unknown types decode to Raw.
func Decode(f Frame) (Message, error) {
	switch (msgKey{f.Class, f.ID}) {
	case msgKey{0x01, 0x07}:
		return decodeNavPVT(f.Payload)
	case msgKey{0x01, 0x03}:
		return decodeNavStatus(f.Payload)
	case msgKey{0x01, 0x35}:
		return decodeNavSat(f.Payload)
	default:
		return Raw{Class: f.Class, ID: f.ID, Payload: append([]byte(nil), f.Payload...)}, nil
	}
}

var le = binary.LittleEndian

func decodeNavPVT(p []byte) (NavPVT, error) {
	if len(p) < 92 {
		return NavPVT{}, fmt.Errorf("NAV-PVT payload %d bytes, want 92", len(p))
	}
	return NavPVT{
		ITOW:    le.Uint32(p[0:]),
		Year:    le.Uint16(p[4:]),
		Month:   p[6],
		Day:     p[7],
		Hour:    p[8],
		Min:     p[9],
		Sec:     p[10],
		Valid:   p[11],
		TAcc:    le.Uint32(p[12:]),
		Nano:    int32(le.Uint32(p[16:])),
		FixType: p[20],
		Flags:   p[21],
		Flags2:  p[22],
		NumSV:   p[23],
		Lon:     float64(int32(le.Uint32(p[24:]))) * 1e-7,
		Lat:     float64(int32(le.Uint32(p[28:]))) * 1e-7,
		Height:  int32(le.Uint32(p[32:])),
		HMSL:    int32(le.Uint32(p[36:])),
		HAcc:    le.Uint32(p[40:]),
		VAcc:    le.Uint32(p[44:]),
		VelN:    int32(le.Uint32(p[48:])),
		VelE:    int32(le.Uint32(p[52:])),
		VelD:    int32(le.Uint32(p[56:])),
		GSpeed:  int32(le.Uint32(p[60:])),
		HeadMot: float64(int32(le.Uint32(p[64:]))) * 1e-5,
		SAcc:    le.Uint32(p[68:]),
		HeadAcc: le.Uint32(p[72:]),
		PDOP:    float64(le.Uint16(p[76:])) * 0.01,

		Flags3:    le.Uint16(p[78:]),
		Reserved1: le.Uint32(p[80:]),
		HeadVeh:   float64(int32(le.Uint32(p[84:]))) * 1e-5,
		MagDec:    float64(int16(le.Uint16(p[88:]))) * 1e-2,
		MagAcc:    float64(le.Uint16(p[90:])) * 1e-2,
	}, nil
}

func decodeNavStatus(p []byte) (NavStatus, error) {
	if len(p) < 16 {
		return NavStatus{}, fmt.Errorf("NAV-STATUS payload %d bytes, want 16", len(p))
	}
	return NavStatus{
		ITOW:    le.Uint32(p[0:]),
		GPSFix:  p[4],
		Flags:   p[5],
		FixStat: p[6],
		Flags2:  p[7],
		TTFF:    le.Uint32(p[8:]),
		MSSS:    le.Uint32(p[12:]),
	}, nil
}

func decodeNavSat(p []byte) (NavSat, error) {
	if len(p) < 8 {
		return NavSat{}, fmt.Errorf("NAV-SAT payload %d bytes, want at least 8", len(p))
	}
	n := int(p[5])
	if len(p) < 8+12*n {
		return NavSat{}, fmt.Errorf("NAV-SAT payload %d bytes for %d satellites", len(p), n)
	}
	s := NavSat{
		ITOW:       le.Uint32(p[0:]),
		Version:    p[4],
		Reserved0:  le.Uint16(p[6:]),
		Satellites: make([]Satellite, n),
	}
	for i := range s.Satellites {
		b := p[8+12*i:]
		s.Satellites[i] = Satellite{
			GNSSID: b[0],
			SVID:   b[1],
			CNO:    b[2],
			Elev:   int8(b[3]),
			Azim:   int16(le.Uint16(b[4:])),
			PRRes:  int16(le.Uint16(b[6:])),
			Flags:  le.Uint32(b[8:]),
		}
	}
	return s, nil
}
