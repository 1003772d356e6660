package trec

import (
	"bufio"
	"io"
	"os"
	"strconv"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// DefaultTag is the run tag written when none is given.
const DefaultTag = "rice-deteriorate"

// WriteRun writes run in TREC format, topics ascending and documents in ranking order.
func WriteRun(w io.Writer, run Run, tag string) error {
	if tag == "" {
		tag = DefaultTag
	}

	bw := bufio.NewWriter(w)
	for _, topic := range run.Topics() {
		for i, e := range run.Ranking(topic) {
			line := topic + " Q0 " + e.DocID + " " + strconv.Itoa(i+1) + " " +
				strconv.FormatFloat(e.Score, 'g', -1, 64) + " " + tag + "\n"
			if _, err := bw.WriteString(line); err != nil {
				return errors.Wrap(errors.CodeIO, "writing run", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.CodeIO, "writing run", err)
	}
	return nil
}

// WriteRunFile writes run to path, replacing any existing file.
func WriteRunFile(path string, run Run, tag string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.IOError(path, err)
	}
	if err := WriteRun(f, run, tag); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}

// WriteQrels writes qrels in TREC format, topics and documents ascending.
func WriteQrels(w io.Writer, qrels Qrels) error {
	bw := bufio.NewWriter(w)
	for _, topic := range sortedKeys(qrels) {
		for _, doc := range sortedKeys(qrels[topic]) {
			line := topic + " 0 " + doc + " " + strconv.Itoa(qrels[topic][doc]) + "\n"
			if _, err := bw.WriteString(line); err != nil {
				return errors.Wrap(errors.CodeIO, "writing qrels", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.CodeIO, "writing qrels", err)
	}
	return nil
}

// WriteQrelsFile writes qrels to path, replacing any existing file.
func WriteQrelsFile(path string, qrels Qrels) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.IOError(path, err)
	}
	if err := WriteQrels(f, qrels); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}
