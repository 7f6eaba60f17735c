package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// utf8BOM is the byte order mark spreadsheet tools use to recognise UTF-8 CSV.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Charset is a candidate encoding tried when decoding input tables.
type Charset struct {
	Name string
	enc  encoding.Encoding
}

// Charsets lists the encodings tried in order. Latin-1 accepts every byte
// sequence and is the last resort.
var Charsets = []Charset{
	{Name: "utf-8"},
	{Name: "gbk", enc: simplifiedchinese.GBK},
	{Name: "gb18030", enc: simplifiedchinese.GB18030},
	{Name: "latin1", enc: charmap.ISO8859_1},
}

// ErrUndecodable is returned when no charset produces clean text.
var ErrUndecodable = eris.New("ingest: no candidate charset decodes input")

// ToUTF8 decodes data into UTF-8 using the first charset in candidates that
// decodes cleanly, and strips a leading BOM. It returns the charset used.
func ToUTF8(data []byte, candidates ...Charset) ([]byte, string, error) {
	if len(candidates) == 0 {
		candidates = Charsets
	}
	if bytes.HasPrefix(data, utf8BOM) {
		return data[len(utf8BOM):], "utf-8", nil
	}
	for _, cs := range candidates {
		if cs.enc == nil {
			if utf8.Valid(data) {
				return data, cs.Name, nil
			}
			continue
		}
		out, err := cs.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		if bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return out, cs.Name, nil
	}
	return nil, "", ErrUndecodable
}

// decodeString returns s as UTF-8, decoding it as GBK or GB18030 when it is
// not valid UTF-8. DBF attribute values are raw bytes with no declared charset.
func decodeString(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out, _, err := ToUTF8([]byte(s))
	if err != nil {
		return s
	}
	return string(out)
}

// NormalizeFile rewrites the file at src as UTF-8 into dst, prefixing a BOM
// when bom is set. dst may equal src. It returns the charset the input was
// read as.
func NormalizeFile(src, dst string, bom bool) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", eris.Wrapf(err, "ingest: read %s", src)
	}
	out, charset, err := ToUTF8(data)
	if err != nil {
		return "", eris.Wrapf(err, "ingest: decode %s", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", eris.Wrapf(err, "ingest: create dir for %s", dst)
	}

	var buf bytes.Buffer
	buf.Grow(len(out) + len(utf8BOM))
	if bom {
		buf.Write(utf8BOM)
	}
	buf.Write(out)

	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", eris.Wrapf(err, "ingest: write %s", tmp)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "ingest: replace %s", dst)
	}

	zap.L().Debug("ingest: normalized file",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("charset", charset),
	)
	return charset, nil
}

// NormalizeDir normalizes every .csv file directly under dir into outDir
// (in place when outDir is empty). Files no charset can decode are skipped
// and reported; other failures abort.
func NormalizeDir(dir, outDir string, bom bool) (converted, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ingest: list %s", dir)
	}
	if outDir == "" {
		outDir = dir
	}

	log := zap.L().With(zap.String("component", "ingest.normalize"))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		src := filepath.Join(dir, e.Name())
		charset, nerr := NormalizeFile(src, filepath.Join(outDir, e.Name()), bom)
		if nerr != nil {
			if eris.Is(nerr, ErrUndecodable) {
				log.Warn("skipping file, all charsets failed", zap.String("file", src))
				skipped = append(skipped, src)
				continue
			}
			return converted, skipped, nerr
		}
		log.Info("converted file", zap.String("file", src), zap.String("charset", charset))
		converted = append(converted, src)
	}
	return converted, skipped, nil
}
