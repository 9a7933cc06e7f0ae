package knx

import (
	"encoding/binary"
	"fmt"
)

// HID report framing of the KNX USB interface.
const (
	ReportSize     = 64
	ReportID       = 0x01
	PacketStartEnd = 0x13 // sequence 1, start and end packet

	transferHeaderLen = 8
	reportHeaderLen   = 3
	maxReportBody     = ReportSize - reportHeaderLen - transferHeaderLen
)

// Transfer protocol identifiers.
const (
	ProtocolTunnel        = 0x01
	ProtocolDeviceFeature = 0x0F

	EMICommon = 0x03

	FeatureServiceSet  = 0x03
	FeatureActiveEMI   = 0x05
	FeatureEMICommonEM = 0x03
)

// cEMI message codes.
const (
	MsgLDataReq = 0x11
	MsgLDataCon = 0x2E
	MsgLDataInd = 0x29
)

// cEMI control fields for point-to-point management frames: standard frame,
// no repeat, low priority; destination is an individual address, hop count 6.
const (
	ctrl1Standard  = 0xB0
	ctrl1ConfError = 0x01
	ctrl2Individ   = 0x60
)

// Transport layer control.
const (
	TPCIConnect    = 0x80
	TPCIDisconnect = 0x81
	tpciAck        = 0xC2
	tpciNak        = 0xC3
	tpciDataConn   = 0x40
	tpciKindMask   = 0xC3
	tpciSeqMask    = 0x3C
)

// Application layer services (10-bit APCI).
const (
	APCIDeviceDescriptorRead     = 0x300
	APCIDeviceDescriptorResponse = 0x340
	APCIAuthorizeRequest         = 0x3D1
	APCIAuthorizeResponse        = 0x3D2
	APCIPropertyValueRead        = 0x3D5
	APCIPropertyValueResponse    = 0x3D6
)

// TransferFrame is one KNX USB transfer protocol frame.
type TransferFrame struct {
	Protocol byte
	// EMI is the EMI id for tunnel frames or the service id for device
	// feature frames.
	EMI  byte
	Body []byte
}

// EncodeReport wraps a transfer frame in a single padded HID report.
func EncodeReport(f TransferFrame) ([]byte, error) {
	if len(f.Body) > maxReportBody {
		return nil, fmt.Errorf("knx: frame body %d bytes exceeds one report", len(f.Body))
	}

	report := make([]byte, ReportSize)
	report[0] = ReportID
	report[1] = PacketStartEnd
	report[2] = byte(transferHeaderLen + len(f.Body))

	h := report[reportHeaderLen:]
	h[0] = 0x00 // protocol version
	h[1] = transferHeaderLen
	binary.BigEndian.PutUint16(h[2:4], uint16(len(f.Body)))
	h[4] = f.Protocol
	h[5] = f.EMI
	// h[6:8] manufacturer code, zero
	copy(h[transferHeaderLen:], f.Body)
	return report, nil
}

// DecodeReport extracts the transfer frame from a single-packet HID report.
func DecodeReport(report []byte) (TransferFrame, error) {
	if len(report) < reportHeaderLen+transferHeaderLen {
		return TransferFrame{}, fmt.Errorf("knx: report too short: %d bytes", len(report))
	}
	if report[0] != ReportID {
		return TransferFrame{}, fmt.Errorf("knx: unexpected report id 0x%02X", report[0])
	}
	if report[1]&0x0F != PacketStartEnd&0x0F {
		return TransferFrame{}, fmt.Errorf("knx: multi-packet reports not supported (info 0x%02X)", report[1])
	}

	dataLen := int(report[2])
	if reportHeaderLen+dataLen > len(report) {
		return TransferFrame{}, fmt.Errorf("knx: report length %d exceeds report", dataLen)
	}

	h := report[reportHeaderLen:]
	if int(h[1]) != transferHeaderLen {
		return TransferFrame{}, fmt.Errorf("knx: unexpected transfer header length %d", h[1])
	}
	bodyLen := int(binary.BigEndian.Uint16(h[2:4]))
	if transferHeaderLen+bodyLen > dataLen {
		return TransferFrame{}, fmt.Errorf("knx: body length %d exceeds report data", bodyLen)
	}

	return TransferFrame{
		Protocol: h[4],
		EMI:      h[5],
		Body:     append([]byte(nil), h[transferHeaderLen:transferHeaderLen+bodyLen]...),
	}, nil
}

// ActiveEMIFrame selects cEMI on the interface.
func ActiveEMIFrame() TransferFrame {
	return TransferFrame{
		Protocol: ProtocolDeviceFeature,
		EMI:      FeatureServiceSet,
		Body:     []byte{FeatureActiveEMI, FeatureEMICommonEM},
	}
}

// LData is a cEMI L_Data frame. TPDU holds the transport PDU starting at the
// TPCI octet.
type LData struct {
	Code        byte
	Ctrl1       byte
	Source      IndividualAddress
	Destination IndividualAddress
	TPDU        []byte
}

// Confirmed reports whether an L_Data.con frame signals success.
func (f LData) Confirmed() bool {
	return f.Code == MsgLDataCon && f.Ctrl1&ctrl1ConfError == 0
}

// NewLDataReq builds a request to dst carrying tpdu.
func NewLDataReq(dst IndividualAddress, tpdu []byte) LData {
	return LData{Code: MsgLDataReq, Ctrl1: ctrl1Standard, Destination: dst, TPDU: tpdu}
}

// Encode renders the cEMI frame.
func (f LData) Encode() []byte {
	out := make([]byte, 0, 9+len(f.TPDU))
	out = append(out, f.Code, 0x00, f.Ctrl1, ctrl2Individ)
	out = binary.BigEndian.AppendUint16(out, uint16(f.Source))
	out = binary.BigEndian.AppendUint16(out, uint16(f.Destination))
	n := len(f.TPDU) - 1
	if n < 0 {
		n = 0
	}
	out = append(out, byte(n))
	return append(out, f.TPDU...)
}

// DecodeLData parses a cEMI L_Data frame.
func DecodeLData(b []byte) (LData, error) {
	if len(b) < 2 {
		return LData{}, fmt.Errorf("knx: cEMI frame too short")
	}
	switch b[0] {
	case MsgLDataReq, MsgLDataCon, MsgLDataInd:
	default:
		return LData{}, fmt.Errorf("knx: unsupported cEMI message code 0x%02X", b[0])
	}

	// skip additional info
	p := 2 + int(b[1])
	if len(b) < p+7 {
		return LData{}, fmt.Errorf("knx: cEMI frame too short")
	}
	n := int(b[p+6]) + 1
	if len(b) < p+7+n {
		return LData{}, fmt.Errorf("knx: cEMI length %d exceeds frame", n)
	}

	return LData{
		Code:        b[0],
		Ctrl1:       b[p],
		Source:      IndividualAddress(binary.BigEndian.Uint16(b[p+2 : p+4])),
		Destination: IndividualAddress(binary.BigEndian.Uint16(b[p+4 : p+6])),
		TPDU:        append([]byte(nil), b[p+7:p+7+n]...),
	}, nil
}

// TPDUKind classifies a transport PDU.
type TPDUKind uint8

const (
	TPDUUnknown TPDUKind = iota
	TPDUConnect
	TPDUDisconnect
	TPDUAck
	TPDUNak
	TPDUData
)

// ControlTPDU builds a connect or disconnect PDU.
func ControlTPDU(tpci byte) []byte {
	return []byte{tpci}
}

// AckTPDU builds a T_ACK for seq.
func AckTPDU(seq uint8) []byte {
	return []byte{tpciAck | (seq&0x0F)<<2}
}

// DataTPDU builds a numbered T_Data_Connected PDU carrying apci and data.
func DataTPDU(seq uint8, apci uint16, data ...byte) []byte {
	out := make([]byte, 2, 2+len(data))
	out[0] = tpciDataConn | (seq&0x0F)<<2 | byte(apci>>8)&0x03
	out[1] = byte(apci)
	return append(out, data...)
}

// ParseTPDU classifies a transport PDU and returns its sequence number.
func ParseTPDU(tpdu []byte) (TPDUKind, uint8) {
	if len(tpdu) == 0 {
		return TPDUUnknown, 0
	}
	b := tpdu[0]
	seq := (b & tpciSeqMask) >> 2
	switch {
	case b == TPCIConnect:
		return TPDUConnect, 0
	case b == TPCIDisconnect:
		return TPDUDisconnect, 0
	case b&tpciKindMask == tpciAck:
		return TPDUAck, seq
	case b&tpciKindMask == tpciNak:
		return TPDUNak, seq
	case b&0xC0 == tpciDataConn:
		return TPDUData, seq
	}
	return TPDUUnknown, 0
}

// APDU splits a data TPDU into its 10-bit APCI and payload. Services whose
// low six APCI bits carry data (A_DeviceDescriptor) are reported with those
// bits cleared.
func APDU(tpdu []byte) (uint16, []byte, error) {
	if len(tpdu) < 2 {
		return 0, nil, fmt.Errorf("knx: APDU too short")
	}
	apci := uint16(tpdu[0]&0x03)<<8 | uint16(tpdu[1])
	if apci&0x3C0 == APCIDeviceDescriptorRead || apci&0x3C0 == APCIDeviceDescriptorResponse {
		apci &= 0x3C0
	}
	return apci, tpdu[2:], nil
}

// AuthorizeRequest builds the A_Authorize_Request payload for key.
func AuthorizeRequest(key uint32) []byte {
	out := []byte{0x00, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(out[1:], key)
	return out
}

// PropertyValueRead builds the A_PropertyValue_Read payload.
func PropertyValueRead(object, pid uint8, count uint8, start uint16) []byte {
	return []byte{object, pid, count<<4 | byte(start>>8)&0x0F, byte(start)}
}
