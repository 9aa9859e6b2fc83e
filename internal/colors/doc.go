// Package colors finds the dominant color of an image.
//
// # Extraction
//
// [Dominant] optionally downsamples the image with an area filter, converts every pixel into the
// working [Space] and clusters the pixels with [KMeans]. The centroid of the most populated cluster
// is the dominant color.
//
// HSV channels use the 8-bit OpenCV ranges: hue 0..180, saturation and value 0..255.
//
// # Determinism
//
// Cluster initialization draws from a PCG source seeded by [Options.Seed]. The same image, options
// and seed always produce the same color.
//
// # Ordering
//
// [Less] orders colors channel by channel, hue first in HSV. [SortIndices] returns a stable
// permutation so callers can reorder their own slices of images.
package colors
