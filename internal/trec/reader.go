package trec

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/hscells/trecresults"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/security"
)

// maxLineSize bounds a single input line; run files can carry long document ids.
const maxLineSize = 1024 * 1024

// ParseRun reads a run in TREC format: "topic Q0 doc rank score [tag]". Each line is decoded
// by trecresults; a missing tag is filled in and fields past the tag are dropped.
// If a (topic, doc) pair repeats, the last score wins.
func ParseRun(r io.Reader) (Run, error) {
	run := make(Run)
	err := scanLines(r, "run", func(line int, fields []string) error {
		if len(fields) < 5 {
			return errors.ParseError("run", line, "expected at least 5 fields")
		}
		if len(fields) == 5 {
			fields = append(fields, DefaultTag)
		}
		result, err := trecresults.ResultFromLine(strings.Join(fields[:6], " "))
		if err != nil {
			return errors.ParseError("run", line, "invalid result: "+security.SanitizeForLogWithLength(err.Error(), 120))
		}
		if run[result.Topic] == nil {
			run[result.Topic] = make(map[string]float64)
		}
		run[result.Topic][result.DocId] = result.Score
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ParseQrels reads relevance judgments in TREC format: "topic iter doc grade".
func ParseQrels(r io.Reader) (Qrels, error) {
	qrels := make(Qrels)
	err := scanLines(r, "qrels", func(line int, fields []string) error {
		if len(fields) != 4 {
			return errors.ParseError("qrels", line, "expected 4 fields")
		}
		qrel, err := trecresults.QrelFromLine(strings.Join(fields, " "))
		if err != nil {
			return errors.ParseError("qrels", line, "invalid judgment: "+security.SanitizeForLogWithLength(err.Error(), 120))
		}
		if qrels[qrel.Topic] == nil {
			qrels[qrel.Topic] = make(map[string]int)
		}
		qrels[qrel.Topic][qrel.DocId] = int(qrel.Score)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return qrels, nil
}

// ReadRunFile opens and parses a run file.
func ReadRunFile(path string) (Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	defer f.Close()
	return ParseRun(f)
}

// ReadQrelsFile opens and parses a qrels file.
func ReadQrelsFile(path string) (Qrels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	defer f.Close()
	return ParseQrels(f)
}

func scanLines(r io.Reader, source string, fn func(line int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := fn(line, strings.Fields(text)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(errors.CodeIO, "reading "+source, err)
	}
	return nil
}
