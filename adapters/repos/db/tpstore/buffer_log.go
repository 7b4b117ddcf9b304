//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package tpstore

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/tpstore/entities/temporal"
)

type BufferLogType uint8

const (
	BufferLogTypePut BufferLogType = 1
)

// type(1) eid(8) pid(4) start(8) end(8) valueType(1) valueLen(4)
const bufferLogRecordHeader = 34

// bufferLog is the append-only backing log of a FileBuffer. Records are
// buffered in memory and only durable after flush.
type bufferLog struct {
	file   *os.File
	writer *bufio.Writer
	path   string
	header [bufferLogRecordHeader]byte
}

func openBufferLog(path string) (*bufferLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, errors.Wrapf(err, "open buffer log %q", path)
	}

	return &bufferLog{
		file:   f,
		writer: bufio.NewWriter(f),
		path:   path,
	}, nil
}

func (l *bufferLog) put(id temporal.EntityPropertyID, iv temporal.TimeInterval,
	vt temporal.ValueType, data []byte,
) error {
	h := l.header[:]
	h[0] = byte(BufferLogTypePut)
	binary.LittleEndian.PutUint64(h[1:9], id.EntityID)
	binary.LittleEndian.PutUint32(h[9:13], uint32(id.PropertyID))
	binary.LittleEndian.PutUint64(h[13:21], uint64(iv.Start))
	binary.LittleEndian.PutUint64(h[21:29], uint64(iv.End))
	h[29] = byte(vt)
	binary.LittleEndian.PutUint32(h[30:34], uint32(len(data)))

	if _, err := l.writer.Write(h); err != nil {
		return errors.Wrap(err, "write record header")
	}
	if _, err := l.writer.Write(data); err != nil {
		return errors.Wrap(err, "write record value")
	}
	return nil
}

func (l *bufferLog) flush() error {
	if err := l.writer.Flush(); err != nil {
		return errors.Wrapf(err, "flush buffer log %q", l.path)
	}
	return l.file.Sync()
}

func (l *bufferLog) close() error {
	if err := l.writer.Flush(); err != nil {
		return err
	}

	return l.file.Close()
}

func (l *bufferLog) delete() error {
	return os.Remove(l.path)
}

// replayBufferLog applies every complete record of the log at path to mt
// and returns the length of the valid prefix of the log. A torn record at
// the end of the log is the remainder of a write that was never flushed and
// is ignored.
func replayBufferLog(path string, mt *MemTable, logger logrus.FieldLogger) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 1024*1024)
	var header [bufferLogRecordHeader]byte
	count := 0
	valid := int64(0)
	for {
		_, err := io.ReadFull(reader, header[:])
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			logger.WithField("action", "tpstore_startup").
				WithField("path", path).
				Warnf("ignoring torn record after %d records in buffer log", count)
			break
		}
		if err != nil {
			return valid, errors.Wrap(err, "read record header")
		}

		if BufferLogType(header[0]) != BufferLogTypePut {
			return valid, errors.Errorf("unsupported buffer log record type %d at record %d",
				header[0], count)
		}

		id := temporal.EntityPropertyID{
			EntityID:   binary.LittleEndian.Uint64(header[1:9]),
			PropertyID: int32(binary.LittleEndian.Uint32(header[9:13])),
		}
		iv := temporal.TimeInterval{
			Start: temporal.TimePoint(binary.LittleEndian.Uint64(header[13:21])),
			End:   temporal.TimePoint(binary.LittleEndian.Uint64(header[21:29])),
		}
		vt := temporal.ValueType(header[29])

		var data []byte
		if n := binary.LittleEndian.Uint32(header[30:34]); n > 0 {
			data = make([]byte, n)
			if _, err := io.ReadFull(reader, data); err != nil {
				if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
					logger.WithField("action", "tpstore_startup").
						WithField("path", path).
						Warnf("ignoring torn record after %d records in buffer log", count)
					break
				}
				return valid, errors.Wrap(err, "read record value")
			}
		}

		if err := mt.AddInterval(id, iv, vt, data); err != nil {
			return valid, errors.Wrapf(err, "apply record %d", count)
		}
		count++
		valid += bufferLogRecordHeader + int64(len(data))
	}

	return valid, nil
}
