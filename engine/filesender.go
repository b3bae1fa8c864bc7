package engine

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/op/go-logging"

	"etherlink.dev/etherlink/frame"
)

// fileSender fragments a file (or a transparently archived directory)
// into chunkSize-byte FILE frames (§4.8).
type fileSender struct {
	myMAC    frame.MAC
	outbound chan<- *frame.Frame
	retry    *retryManager
	log      *logging.Logger
}

func newFileSender(myMAC frame.MAC, outbound chan<- *frame.Frame, retry *retryManager, log *logging.Logger) *fileSender {
	return &fileSender{myMAC: myMAC, outbound: outbound, retry: retry, log: log}
}

// send fragments path and transmits it to dst, returning the allocated
// transfer ID. When reliable, each fragment is registered with the retry
// manager; otherwise fragments go straight to the outbound queue.
func (s *fileSender) send(path string, dst frame.MAC, reliable bool) (uint16, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("engine: stat %q: %w", path, err)
	}

	sendPath := path
	if info.IsDir() {
		archivePath, err := archiveDirectory(path, s.retry.ids.next())
		if err != nil {
			return 0, fmt.Errorf("engine: archive directory %q: %w", path, err)
		}
		defer os.Remove(archivePath)
		sendPath = archivePath
	}

	return s.sendFile(sendPath, dst, reliable)
}

func (s *fileSender) sendFile(path string, dst frame.MAC, reliable bool) (uint16, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("engine: open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("engine: stat %q: %w", path, err)
	}

	totalFrags := (info.Size() + int64(chunkSize) - 1) / int64(chunkSize)
	if totalFrags == 0 {
		totalFrags = 1
	}
	if totalFrags > 0xFFFF {
		return 0, fmt.Errorf("engine: %q too large to fragment (%d fragments)", path, totalFrags)
	}

	transferID := s.retry.ids.next()
	filename := filepath.Base(path)
	description := fmt.Sprintf("%q (%d bytes)", filename, info.Size())
	s.log.Infof("filesender: starting transfer %d: %s -> %s (reliable=%v)", transferID, description, dst, reliable)

	buf := make([]byte, chunkSize)
	for fragNo := 1; fragNo <= int(totalFrags); fragNo++ {
		n, readErr := io.ReadFull(f, buf)
		// An empty file still sends fragment 1, carrying only "<name>|".
		if n == 0 && readErr != nil && (fragNo > 1 || readErr != io.EOF) {
			break
		}
		chunk := buf[:n]

		var payload []byte
		if fragNo == 1 {
			payload = append([]byte(filename+"|"), chunk...)
		} else {
			payload = append([]byte(nil), chunk...)
		}

		fr := &frame.Frame{
			Dst:        dst,
			Src:        s.myMAC,
			Type:       frame.TypeFILE,
			TransferID: transferID,
			FragmentNo: uint16(fragNo),
			TotalFrags: uint16(totalFrags),
			Payload:    payload,
		}

		if reliable {
			desc := fmt.Sprintf("fragment %d/%d of %s", fragNo, totalFrags, description)
			if !s.retry.register(fr, desc) {
				s.log.Errorf("filesender: could not register %s", desc)
				return transferID, nil
			}
		} else {
			s.outbound <- fr
		}

		if fragNo%fragmentYieldFor == 0 {
			time.Sleep(time.Millisecond)
		}

		if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
			break
		}
	}

	if reliable {
		s.log.Infof("filesender: reliable transfer %d registered: %d fragments", transferID, totalFrags)
	} else {
		s.log.Infof("filesender: unreliable transfer %d completed: %d fragments", transferID, totalFrags)
	}
	return transferID, nil
}

// archiveDirectory compresses dir into a temporary zip named
// temp_transfer_<tid>.zip, per §6's filesystem contract.
func archiveDirectory(dir string, transferID uint16) (string, error) {
	archivePath := filepath.Join(os.TempDir(), fmt.Sprintf("temp_transfer_%d.zip", transferID))
	out, err := os.Create(archivePath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	walkErr := filepath.Walk(dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		w, err := zw.Create(rel)
		if err != nil {
			return err
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
	if closeErr := zw.Close(); walkErr == nil {
		walkErr = closeErr
	}
	if walkErr != nil {
		os.Remove(archivePath)
		return "", walkErr
	}
	return archivePath, nil
}
