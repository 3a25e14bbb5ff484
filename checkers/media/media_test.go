package media

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/Hellohistory/ErrorFile/report"
)

var modes = []report.Mode{report.ModeFast, report.ModeDeep}

func write(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

// mp3Bytes returns n silent MPEG-1 Layer III frames at 128 kbit/s, 44.1 kHz.
func mp3Bytes(n int) []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x64})
	return bytes.Repeat(frame, n)
}

func box(typ string, payload []byte) []byte {
	out := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint32(out, uint32(8+len(payload)))
	copy(out[4:], typ)
	return append(out, payload...)
}

func mp4Bytes() []byte {
	ftyp := box("ftyp", []byte("isom\x00\x00\x02\x00isomiso2"))
	mvhd := make([]byte, 100)
	binary.BigEndian.PutUint32(mvhd[12:], 1000)       // timescale
	binary.BigEndian.PutUint32(mvhd[20:], 0x00010000) // rate
	binary.BigEndian.PutUint16(mvhd[24:], 0x0100)     // volume
	for i, v := range []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000} {
		binary.BigEndian.PutUint32(mvhd[36+4*i:], v)
	}
	binary.BigEndian.PutUint32(mvhd[96:], 1) // next track id
	moov := box("moov", box("mvhd", mvhd))
	return append(ftyp, moov...)
}

// flacBytes is a stereo 16-bit 44.1 kHz stream with no audio frames.
func flacBytes() []byte {
	out := []byte("fLaC")
	out = append(out, 0x80, 0x00, 0x00, 0x22)
	out = append(out, 0x10, 0x00, 0x10, 0x00) // block size 4096..4096
	out = append(out, 0, 0, 0, 0, 0, 0)       // frame sizes unknown
	out = append(out, 0x0A, 0xC4, 0x42, 0xF0, 0, 0, 0, 0)
	return append(out, make([]byte, 16)...)
}

func wavBytes(samples int) []byte {
	data := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(i*64))
	}
	var buf bytes.Buffer
	le := func(v any) { binary.Write(&buf, binary.LittleEndian, v) }
	buf.WriteString("RIFF")
	le(uint32(36 + len(data)))
	buf.WriteString("WAVEfmt ")
	le(uint32(16))
	le(uint16(1))    // PCM
	le(uint16(1))    // channels
	le(uint32(8000)) // sample rate
	le(uint32(16000))
	le(uint16(2))
	le(uint16(16))
	buf.WriteString("data")
	le(uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

func oggPageBytes(flags byte, serial, seq uint32, body []byte) []byte {
	hdr := make([]byte, oggHeaderLen, oggHeaderLen+1+len(body))
	copy(hdr, "OggS")
	hdr[5] = flags
	binary.LittleEndian.PutUint32(hdr[14:], serial)
	binary.LittleEndian.PutUint32(hdr[18:], seq)
	hdr[26] = 1
	page := append(hdr, byte(len(body)))
	page = append(page, body...)
	binary.LittleEndian.PutUint32(page[22:], oggCRC(0, page))
	return page
}

func oggBytes(last byte) []byte {
	var out []byte
	out = append(out, oggPageBytes(oggBOS, 7, 0, []byte("head"))...)
	out = append(out, oggPageBytes(0, 7, 1, []byte("middle"))...)
	return append(out, oggPageBytes(last, 7, 2, []byte("tail"))...)
}

func TestMP3(t *testing.T) {
	good := write(t, "good.mp3", mp3Bytes(10))
	for _, m := range modes {
		if f := CheckMP3(good, m); !f.OK {
			t.Fatalf("%s: unexpected failure %+v", m, f)
		}
	}
	data := mp3Bytes(10)
	cut := write(t, "cut.mp3", data[:len(data)-100])
	if f := CheckMP3(cut, report.ModeDeep); f.OK {
		t.Fatalf("truncated mp3 passed deep check: %+v", f)
	}
	bad := write(t, "bad.mp3", []byte("plain text, no frames here"))
	if f := CheckMP3(bad, report.ModeFast); f.OK || !f.HasTag(report.TagInvalidFormat) {
		t.Fatalf("unexpected finding %+v", f)
	}
}

func TestID3v2Size(t *testing.T) {
	hdr := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0x02, 0x01}
	f, err := os.Open(write(t, "tag.mp3", append(hdr, mp3Bytes(1)...)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	n, err := id3v2Size(f)
	if err != nil || n != 10+257 {
		t.Fatalf("got %d %v", n, err)
	}
}

func TestMP4(t *testing.T) {
	good := write(t, "good.mp4", mp4Bytes())
	for _, m := range modes {
		if f := CheckMP4(good, m); !f.OK {
			t.Fatalf("%s: unexpected failure %+v", m, f)
		}
	}
	data := mp4Bytes()
	cut := write(t, "cut.mp4", data[:len(data)-20])
	if f := CheckMP4(cut, report.ModeFast); f.OK || !f.HasTag(report.TagCorrupted) {
		t.Fatalf("unexpected finding %+v", f)
	}
	noMoov := write(t, "nomoov.mp4", box("ftyp", []byte("isom\x00\x00\x00\x00")))
	if f := CheckMP4(noMoov, report.ModeFast); f.OK {
		t.Fatal("mp4 without moov accepted")
	}
	notFirst := write(t, "order.mp4", append(box("free", nil), data...))
	if f := CheckMP4(notFirst, report.ModeFast); f.OK || !f.HasTag(report.TagInvalidFormat) {
		t.Fatalf("unexpected finding %+v", f)
	}
}

func TestTopLevelBoxes(t *testing.T) {
	data := append(box("ftyp", []byte("isom")), box("mdat", nil)...)
	data = append(data, 0, 0, 0, 0, 'f', 'r', 'e', 'e', 1, 2, 3) // size 0 runs to EOF
	types, err := topLevelBoxes(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("topLevelBoxes: %v", err)
	}
	if len(types) != 3 || types[2] != "free" {
		t.Fatalf("got %v", types)
	}
}

func TestFLAC(t *testing.T) {
	good := write(t, "good.flac", flacBytes())
	for _, m := range modes {
		if f := CheckFLAC(good, m); !f.OK {
			t.Fatalf("%s: unexpected failure %+v", m, f)
		}
	}
	data := flacBytes()
	cut := write(t, "cut.flac", data[:20])
	bad := write(t, "bad.flac", []byte("definitely not flac"))
	for _, m := range modes {
		if f := CheckFLAC(cut, m); f.OK {
			t.Fatalf("%s: truncated flac accepted", m)
		}
		if f := CheckFLAC(bad, m); f.OK {
			t.Fatalf("%s: text accepted as flac", m)
		}
	}
}

func TestWAV(t *testing.T) {
	good := write(t, "good.wav", wavBytes(800))
	for _, m := range modes {
		if f := CheckWAV(good, m); !f.OK {
			t.Fatalf("%s: unexpected failure %+v", m, f)
		}
	}
	data := wavBytes(800)
	cut := write(t, "cut.wav", data[:len(data)-200])
	if f := CheckWAV(cut, report.ModeFast); f.OK || !f.HasTag(report.TagCorrupted) {
		t.Fatalf("unexpected finding %+v", f)
	}
	bad := write(t, "bad.wav", []byte("RIFF....AVI LIST"))
	if f := CheckWAV(bad, report.ModeFast); f.OK || !f.HasTag(report.TagInvalidFormat) {
		t.Fatalf("unexpected finding %+v", f)
	}
}

func TestOgg(t *testing.T) {
	good := write(t, "good.ogg", oggBytes(oggEOS))
	for _, m := range modes {
		if f := CheckOgg(good, m); !f.OK {
			t.Fatalf("%s: unexpected failure %+v", m, f)
		}
	}

	open := write(t, "open.ogg", oggBytes(0))
	if f := CheckOgg(open, report.ModeFast); !f.OK {
		t.Fatalf("fast mode only reads the first page: %+v", f)
	}
	if f := CheckOgg(open, report.ModeDeep); f.OK {
		t.Fatal("stream without end-of-stream page passed deep check")
	}

	data := oggBytes(oggEOS)
	data[len(data)-2] ^= 0xFF
	flipped := write(t, "crc.ogg", data)
	if f := CheckOgg(flipped, report.ModeDeep); f.OK || !f.HasTag(report.TagCorrupted) {
		t.Fatalf("unexpected finding %+v", f)
	}

	bad := write(t, "bad.ogg", bytes.Repeat([]byte("x"), 64))
	if f := CheckOgg(bad, report.ModeFast); f.OK || !f.HasTag(report.TagInvalidFormat) {
		t.Fatalf("unexpected finding %+v", f)
	}
}

func TestOggSequenceGap(t *testing.T) {
	var data []byte
	data = append(data, oggPageBytes(oggBOS, 1, 0, []byte("a"))...)
	data = append(data, oggPageBytes(oggEOS, 1, 5, []byte("b"))...)
	path := write(t, "gap.ogg", data)
	if f := CheckOgg(path, report.ModeDeep); f.OK {
		t.Fatal("sequence gap accepted")
	}
}
