// Package mosaic builds a color-sorted collage from a directory of images.
//
// The pipeline runs in four stages:
//
//   - [Loader] decodes every supported file in a directory and applies a [FilterPolicy].
//     Files that fail to decode or do not match the policy are logged and skipped.
//   - [Extract] finds the dominant color of each image, optionally on a bounded worker pool.
//   - [Arrange] orders the samples by dominant color.
//   - [Compose] places the ordered images on a [montage.Montage] and scales the result to the
//     requested height; [Write] encodes it by file extension.
//
// [Pipeline] wires the stages together for the CLI.
package mosaic
