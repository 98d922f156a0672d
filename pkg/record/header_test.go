package record

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func TestHeaderEncoding(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		hdr  Header
		want string
	}{
		{
			name: "stream handshake",
			mode: ModeStream,
			hdr:  Header{Type: ContentHandshake, Version: VersionTLS, Length: 0x0123},
			want: "16030401 23",
		},
		{
			name: "datagram application data",
			mode: ModeDatagram,
			hdr: Header{
				Type: ContentApplicationData, Version: VersionDTLS,
				Epoch: 1, Sequence: 0x0000_a1b2_c3d4_e5f6 & MaxDatagramSequence, Length: 17,
			},
			want: "17fefc 0001 a1b2c3d4e5f6 0011",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, _ := hex.DecodeString(stripSpaces(tt.want))
			got := tt.hdr.Marshal(tt.mode)
			if !bytes.Equal(got, want) {
				t.Fatalf("Marshal() = %x, want %x", got, want)
			}
			if len(got) != tt.mode.HeaderSize() {
				t.Errorf("len = %d, want %d", len(got), tt.mode.HeaderSize())
			}

			parsed, err := ParseHeader(tt.mode, append(got, 0xff))
			if err != nil {
				t.Fatalf("ParseHeader() error: %v", err)
			}
			if parsed != tt.hdr {
				t.Errorf("ParseHeader() = %+v, want %+v", parsed, tt.hdr)
			}
		})
	}
}

func TestParseHeaderShort(t *testing.T) {
	if _, err := ParseHeader(ModeDatagram, make([]byte, 12)); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("ParseHeader(12 bytes) = %v, want ErrInvalidHeader", err)
	}
}

func TestAlert(t *testing.T) {
	a := Alert{Level: AlertLevelFatal, Description: AlertBadRecordMAC}
	got, err := ParseAlert(a.Marshal())
	if err != nil || got != a {
		t.Fatalf("ParseAlert() = %+v, %v", got, err)
	}
	if a.Error() != "record: fatal alert: bad_record_mac" {
		t.Errorf("Error() = %q", a.Error())
	}
	if !(Alert{Level: AlertLevelWarning}).IsCloseNotify() {
		t.Error("close_notify not recognised")
	}
	if _, err := ParseAlert([]byte{1}); !errors.Is(err, ErrUnexpectedRecord) {
		t.Errorf("ParseAlert(short) = %v", err)
	}
	if AlertFor(ErrBadRecordMAC) != AlertBadRecordMAC || AlertFor(ErrRecordOverflow) != AlertRecordOverflow {
		t.Error("AlertFor() mapping is wrong")
	}
}

func stripSpaces(s string) string {
	return string(bytes.ReplaceAll([]byte(s), []byte(" "), nil))
}
