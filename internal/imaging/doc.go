// Package imaging connects image files and standard Go images to the raster
// buffers used by the feature pipeline.
//
// It loads and caches decoded images, converts them to and from
// raster.Buffer[uint8], encodes results as base64 PNG for MCP responses, and
// draws keypoint overlays. Decoding, grayscale conversion, resizing and saving
// go through github.com/disintegration/imaging; the CIE L* gray mode uses
// github.com/lucasb-eyer/go-colorful.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner of the
// image bounds, X increasing rightward and Y increasing downward. Buffers
// returned by ToGray and ToBuffer start at the image's Bounds().Min, so a
// sub-image maps to a buffer whose (0,0) is the sub-image corner.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Cached images must be
// treated as read-only; every conversion here returns fresh storage.
//
// # Error Handling
//
// Functions return errors for:
//   - File I/O and decode errors during loading
//   - Empty images or buffers with unsupported channel counts
//     (raster.ErrInvalidDimensions)
//   - Encoding errors during image output
package imaging
