package txlog

import (
	"os"
	"sort"

	"github.com/INLOpen/nexusbase/core"
)

// DiscoverFiles scans logDir and archiveDir for WAL segment files and
// returns them as a single list of descriptors sorted by LogNumber alone,
// live and archived files interleaved, deduplicated so a
// log number present in both directories (mid-rotation) appears once, as
// Live.
//
// StartSequence is left zero on every returned descriptor: this function
// only knows what files exist on disk, not where their contents start in
// sequence space. A caller wanting strict-reseek fallback needs a real
// StartSequence and must fill it in itself, from a version log or from
// peeking each file's first record header.
func DiscoverFiles(logDir, archiveDir string) ([]LogFileDescriptor, error) {
	seen := make(map[uint64]LogFileDescriptor)

	liveEntries, err := os.ReadDir(logDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, entry := range liveEntries {
		if entry.IsDir() {
			continue
		}
		logNumber, err := core.ParseSegmentFileName(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		seen[logNumber] = LogFileDescriptor{
			LogNumber: logNumber,
			Kind:      Live,
			SizeBytes: uint64(info.Size()),
		}
	}

	archivedEntries, err := os.ReadDir(archiveDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, entry := range archivedEntries {
		if entry.IsDir() {
			continue
		}
		logNumber, err := core.ParseSegmentFileName(entry.Name())
		if err != nil {
			continue
		}
		if _, ok := seen[logNumber]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		seen[logNumber] = LogFileDescriptor{
			LogNumber: logNumber,
			Kind:      Archived,
			SizeBytes: uint64(info.Size()),
		}
	}

	files := make([]LogFileDescriptor, 0, len(seen))
	for _, desc := range seen {
		files = append(files, desc)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Less(files[j]) })
	return files, nil
}
