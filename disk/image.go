// Package disk manages the FATX hard disk image handed to the emulator.
// The filesystem itself is handled by a Codec; this package owns the
// lifecycle of the image file on the host.
package disk

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultSize is the size of a freshly created image (8 GiB).
const DefaultSize int64 = 8 * 1024 * 1024 * 1024

// ErrConflictingImage is returned when a file of unexpected size already
// exists at the image path.
var ErrConflictingImage = errors.New("target image path exists and is not expected size")

// Codec reads and writes the filesystem stored inside an image file.
type Codec interface {
	// Create writes a blank formatted image of the given size.
	Create(ctx context.Context, imagePath string, size int64) error
	// Format reformats an existing image in place.
	Format(ctx context.Context, imagePath string) error
	// Mkdir creates a directory on the given drive.
	Mkdir(ctx context.Context, imagePath, drive, dir string) error
	// Write stores a file on the given drive.
	Write(ctx context.Context, imagePath, drive, name string, data []byte) error
	// Extract unpacks the image into dest, which already exists and is empty.
	Extract(ctx context.Context, imagePath, dest string) error
}

// Image is a disk image file on the host.
type Image struct {
	logger zerolog.Logger
	path   string
	codec  Codec
	fs     afero.Fs
}

// Option is a function that configures an Image.
type Option func(*Image)

// WithFs sets the host filesystem used for stat and cleanup operations.
func WithFs(fs afero.Fs) Option {
	return func(i *Image) {
		i.fs = fs
	}
}

// New creates an Image at path backed by codec.
func New(logger zerolog.Logger, path string, codec Codec, opts ...Option) *Image {
	i := &Image{
		logger: logger.With().Str("component", "disk").Logger(),
		path:   path,
		codec:  codec,
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Path returns the location of the image file.
func (i *Image) Path() string {
	return i.path
}

// Prepare creates the image if it does not exist, or reformats it when it
// exists with exactly the expected size. A file of any other size is left
// untouched and ErrConflictingImage is returned.
func (i *Image) Prepare(ctx context.Context, size int64) error {
	i.logger.Debug().Str("path", i.path).Int64("size", size).Msg("Preparing HDD image")

	info, err := i.fs.Stat(i.path)
	switch {
	case err == nil:
		if info.IsDir() || info.Size() != size {
			return fmt.Errorf("%w: %s has %d bytes, want %d", ErrConflictingImage, i.path, info.Size(), size)
		}
		if err := i.codec.Format(ctx, i.path); err != nil {
			return fmt.Errorf("failed to format image: %w", err)
		}
		i.logger.Debug().Str("path", i.path).Msg("Reformatted existing HDD image")
	case os.IsNotExist(err):
		if err := i.codec.Create(ctx, i.path, size); err != nil {
			return fmt.Errorf("failed to create image: %w", err)
		}
		i.logger.Debug().Str("path", i.path).Msg("Created HDD image")
	default:
		return fmt.Errorf("failed to stat image: %w", err)
	}
	return nil
}

// Volume returns a handle on one logical drive of the image.
func (i *Image) Volume(drive string) *Volume {
	return &Volume{image: i, drive: drive}
}

// ExtractTo unpacks the full image tree into dest, removing whatever dest
// held before.
func (i *Image) ExtractTo(ctx context.Context, dest string) error {
	i.logger.Debug().Str("image", i.path).Str("dest", dest).Msg("Extracting HDD image files")

	if err := i.fs.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to clear extraction directory: %w", err)
	}
	if err := i.fs.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}
	if err := i.codec.Extract(ctx, i.path, dest); err != nil {
		return fmt.Errorf("failed to extract image: %w", err)
	}
	return nil
}

// Volume is one drive letter inside an Image.
type Volume struct {
	image *Image
	drive string
}

// Drive returns the drive letter.
func (v *Volume) Drive() string {
	return v.drive
}

// Mkdir creates dir on the volume.
func (v *Volume) Mkdir(ctx context.Context, dir string) error {
	v.image.logger.Debug().Str("drive", v.drive).Str("dir", dir).Msg("Creating directory in image")
	if err := v.image.codec.Mkdir(ctx, v.image.path, v.drive, dir); err != nil {
		return fmt.Errorf("failed to create %s:%s: %w", v.drive, dir, err)
	}
	return nil
}

// Write stores data at name on the volume.
func (v *Volume) Write(ctx context.Context, name string, data []byte) error {
	v.image.logger.Debug().
		Str("drive", v.drive).
		Str("file", name).
		Int("size", len(data)).
		Msg("Writing file into image")
	if err := v.image.codec.Write(ctx, v.image.path, v.drive, name, data); err != nil {
		return fmt.Errorf("failed to write %s:%s: %w", v.drive, name, err)
	}
	return nil
}
