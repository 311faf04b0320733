// Package webpconv converts PNG, JPEG and GIF images to WebP.
//
// A Converter decodes each source, normalizes its pixels to either an
// opaque or a transparency-capable layout, and hands the result to a
// pluggable codec.Encoder. Multi-frame GIFs become animated WebP files;
// everything else becomes a still image. Each conversion reports the
// size reduction it achieved, and ConvertAll folds a whole batch into a
// Report whose order matches the input order.
//
// Basic usage:
//
//	conv := webpconv.New(nil)
//	res, err := conv.Convert(ctx, webpconv.Source{Name: "cat.png", Data: data},
//		webpconv.Policy{Quality: 85})
//
// Transparency rules:
//   - PNG sources keep their alpha channel.
//   - JPEG and other sources are composited over the background (white by
//     default).
//   - Palette images are transparent only when the palette declares a
//     transparent entry.
//   - Animated GIF frames always carry an alpha channel.
//
// Lossy encodes of transparency-capable stills use a quality five points
// above the policy (capped at 100).
package webpconv
