package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	glru "github.com/golang/groupcache/lru"
	"github.com/op/go-logging"

	"etherlink.dev/etherlink/frame"
)

// assembler owns active-transfer state and reassembles FILE fragments
// into files under downloadDir (§4.9). The authoritative store is a plain
// map, needed because cleanup must enumerate every entry by last-seen
// time and groupcache's lru.Cache exposes no iteration method; a
// secondary groupcache LRU index of the same keys, sized to
// maxTrackedXfers, bounds memory from a peer that opens many transfers
// and never finishes them, evicting the oldest from both structures via
// OnEvicted — grounded on the teacher's EnclaveClient, which keeps two
// *lru.Cache fields (requestCallbacksByRequestID, ackedRequestIDs) from
// this same package.
type assembler struct {
	mu          sync.Mutex
	transfers   map[transferKey]*activeTransfer
	recency     *glru.Cache
	downloadDir string
	log         *logging.Logger

	fragments chan *frame.Frame
	stopOnce  sync.Once
	stopCh    chan struct{}
}

func newAssembler(downloadDir string, log *logging.Logger) (*assembler, error) {
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create download directory %q: %w", downloadDir, err)
	}

	a := &assembler{
		transfers:   make(map[transferKey]*activeTransfer),
		downloadDir: downloadDir,
		log:         log,
		fragments:   make(chan *frame.Frame, inboundQueueSize),
		stopCh:      make(chan struct{}),
	}
	a.recency = glru.New(maxTrackedXfers)
	a.recency.OnEvicted = func(key glru.Key, _ interface{}) {
		tk := key.(transferKey)
		if t, ok := a.transfers[tk]; ok {
			a.log.Warningf("assembler: evicting stale transfer %d from %s ('%s') under table pressure", tk.TransferID, tk.Src, t.filename)
			delete(a.transfers, tk)
		}
	}
	return a, nil
}

func (a *assembler) run(wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(transferCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case f := <-a.fragments:
			if f == shutdownSentinel {
				return
			}
			a.ingest(f)
		case <-ticker.C:
			if n := a.cleanupExpired(); n > 0 {
				a.log.Debugf("assembler: expired %d stale transfers", n)
			}
		}
	}
}

func (a *assembler) stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
		select {
		case a.fragments <- shutdownSentinel:
		default:
		}
	})
}

// ingest processes one FILE fragment per the reassembly state machine.
func (a *assembler) ingest(f *frame.Frame) {
	key := transferKey{Src: f.Src, TransferID: f.TransferID}

	a.mu.Lock()
	t, known := a.transfers[key]
	if !known {
		if f.FragmentNo != 1 {
			a.mu.Unlock()
			a.log.Warningf("assembler: fragment %d for unknown transfer %d from %s without an opening fragment", f.FragmentNo, f.TransferID, f.Src)
			return
		}
		nt, ok := a.openTransfer(key, f)
		if !ok {
			a.mu.Unlock()
			return
		}
		t = nt
		a.transfers[key] = t
		a.recency.Add(key, struct{}{})
		if t.totalFrags == 1 {
			a.finishLocked(key)
		}
		a.mu.Unlock()
		return
	}

	if t.totalFrags != f.TotalFrags {
		a.mu.Unlock()
		a.log.Warningf("assembler: total_frags mismatch for transfer %d from %s", f.TransferID, f.Src)
		return
	}
	if _, dup := t.fragments[f.FragmentNo]; dup {
		a.mu.Unlock()
		a.log.Debugf("assembler: duplicate fragment %d for transfer %d", f.FragmentNo, f.TransferID)
		return
	}

	t.fragments[f.FragmentNo] = f.Payload
	t.lastSeen = time.Now()

	if uint16(len(t.fragments)) == t.totalFrags {
		a.finishLocked(key)
	}
	a.mu.Unlock()
}

// openTransfer parses fragment 1's "<filename>|<chunk>" payload and
// records the new active transfer. Caller holds a.mu.
func (a *assembler) openTransfer(key transferKey, f *frame.Frame) (*activeTransfer, bool) {
	idx := indexOfByte(f.Payload, '|')
	if idx < 0 {
		a.log.Errorf("assembler: opening fragment for transfer %d has no '|' separator", f.TransferID)
		return nil, false
	}
	filename := sanitizeFilename(string(f.Payload[:idx]), f.TransferID)
	chunk := append([]byte(nil), f.Payload[idx+1:]...)

	a.log.Infof("assembler: new transfer %d from %s: %q (%d fragments)", f.TransferID, f.Src, filename, f.TotalFrags)

	return &activeTransfer{
		filename:   filename,
		totalFrags: f.TotalFrags,
		fragments:  map[uint16][]byte{1: chunk},
		lastSeen:   time.Now(),
		src:        f.Src,
	}, true
}

// finishLocked assembles and writes the completed transfer to disk, then
// drops its table entry. Caller holds a.mu.
func (a *assembler) finishLocked(key transferKey) {
	t := a.transfers[key]
	delete(a.transfers, key)
	a.recency.Remove(key)

	path := uniquePath(a.downloadDir, t.filename)
	if err := writeFragments(path, t); err != nil {
		a.log.Errorf("assembler: writing %q for transfer %d: %v", path, key.TransferID, err)
		_ = os.Remove(path)
		return
	}
	a.log.Infof("assembler: assembled %q from %s (transfer %d)", path, t.src, key.TransferID)
}

func writeFragments(path string, t *activeTransfer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := uint16(1); i <= t.totalFrags; i++ {
		chunk, ok := t.fragments[i]
		if !ok {
			return fmt.Errorf("missing fragment %d of %d", i, t.totalFrags)
		}
		if _, err := f.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

// cleanupExpired drops transfers whose last fragment arrived more than
// transferTimeout ago.
func (a *assembler) cleanupExpired() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, t := range a.transfers {
		if now.Sub(t.lastSeen) > transferTimeout {
			a.log.Warningf("assembler: transfer %d ('%s') expired", key.TransferID, t.filename)
			delete(a.transfers, key)
			a.recency.Remove(key)
			removed++
		}
	}
	return removed
}

func indexOfByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// sanitizeFilename restricts the declared filename to alphanumerics plus
// space, '-', '_', '.', falling back to "file_<tid>" if that leaves
// nothing usable.
func sanitizeFilename(name string, transferID uint16) string {
	var b strings.Builder
	for _, r := range name {
		if r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' ||
			r == ' ' || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := strings.TrimSpace(b.String())
	if clean == "" {
		return fmt.Sprintf("file_%d", transferID)
	}
	return clean
}

// uniquePath appends "_1", "_2", … before the extension until the result
// does not already exist in dir.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
