package downloader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vdl/internal/utils"
)

// Finalize moves the partial file out of workDir into destDir, picking a
// free name on collision, and removes workDir only once the move succeeded.
func Finalize(workDir, fileName, destDir string) (string, error) {
	partial := filepath.Join(workDir, fileName)
	if _, err := os.Stat(partial); err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrMoveFailed, err)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrMoveFailed, err)
	}
	target := utils.AvailablePath(filepath.Join(destDir, fileName))
	if err := utils.MoveFile(partial, target); err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrMoveFailed, err)
	}
	if err := os.RemoveAll(workDir); err != nil {
		log.Warn().Str("op", "downloader/finalize").Err(err).Msgf("could not remove working directory %s", workDir)
	}
	log.Info().Str("op", "downloader/finalize").Msgf("saved %s", target)
	return target, nil
}

// FinalizePartial cuts the partial file down to SavedLength and finalizes it.
// It returns the final path and the kept length.
func FinalizePartial(workDir, fileName, destDir string) (string, int64, error) {
	saved, err := SavedLength(workDir, fileName)
	if err != nil {
		return "", 0, err
	}
	if err := os.Truncate(filepath.Join(workDir, fileName), saved); err != nil {
		return "", 0, fmt.Errorf("%w: %v", utils.ErrMoveFailed, err)
	}
	path, err := Finalize(workDir, fileName, destDir)
	if err != nil {
		return "", 0, err
	}
	return path, saved, nil
}

// SavedLength is the length of the leading bytes of the partial file that
// were actually received: every completed chunk in order, followed by the
// copied part of the first unfinished one. Without a plan the file was
// written as a single stream and its size is used.
func SavedLength(workDir, fileName string) (int64, error) {
	plan, err := LoadPlan(workDir)
	if err != nil {
		return 0, err
	}
	if plan == nil || !plan.Valid() {
		info, err := os.Stat(filepath.Join(workDir, fileName))
		if err != nil {
			return 0, fmt.Errorf("%w: %v", utils.ErrMoveFailed, err)
		}
		return info.Size(), nil
	}
	var saved int64
	for _, chunk := range plan.Chunks {
		size := chunk.Size()
		if size == 0 {
			continue
		}
		copied := readSidecar(sidecarPath(workDir, chunk.Index), size)
		saved = chunk.Start + copied
		if copied < size {
			break
		}
	}
	return saved, nil
}

// Discard removes every trace of a task from the temp root.
func Discard(workDir string) error {
	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("error removing working directory: %v", err)
	}
	return nil
}
