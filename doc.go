// Package layerpack turns a stored asset into a zip of PNG layers.
//
// A Pipeline fetches an object from an ObjectStore, hands the bytes to a
// Decoder that yields an ordered list of images, encodes every image to PNG
// in parallel, packs the results into one deterministic zip and writes it
// back to the store.
//
// Basic usage:
//
//	st, _ := layerpack.NewLocalStore("/var/lib/layerpack", layerpack.CodecNone)
//	p := layerpack.New(st, layerpack.FrameDecoder)
//
//	res, err := p.Process(ctx, "assets/banner.gif", layerpack.DestinationKey("assets/banner.gif", ""))
//	if layerpack.IsMissing(err) {
//	    // the source object does not exist
//	}
//	fmt.Println(res.Key, res.Entries, res.Digest)
//
// Entries are named image_0.png, image_1.png, ... in decode order, whatever
// order the workers finish in. Nothing is written unless every stage
// succeeds.
package layerpack
