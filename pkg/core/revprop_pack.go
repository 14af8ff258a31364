package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model"
	"github.com/packline/revstore/pkg/storage"
	storagestatus "github.com/packline/revstore/pkg/storage/status"
)

const revpropPackTag = "revprop-pack"

// revpropPack is one revprop pack file: the property blobs of a dense
// revision range starting at start.
type revpropPack struct {
	start model.RevNum
	blobs [][]byte
}

func (p *revpropPack) blobFor(rev model.RevNum) ([]byte, bool) {
	idx := int(rev - p.start)
	if idx < 0 || idx >= len(p.blobs) {
		return nil, false
	}
	return p.blobs[idx], true
}

// serialize renders the pack body: a header line, one size line per
// blob, a separating blank line, then the raw blobs back to back.
func (p *revpropPack) serialize(compress bool) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d %d\n", revpropPackTag, p.start, len(p.blobs))
	for _, b := range p.blobs {
		fmt.Fprintf(&sb, "%d\n", len(b))
	}
	sb.WriteString("\n")
	for _, b := range p.blobs {
		sb.Write(b)
	}
	body := []byte(sb.String())
	if compress {
		body = compressBlob(body)
	}
	return body
}

func parseRevpropPack(data []byte) (*revpropPack, error) {
	if isCompressedBlob(data) {
		plain, err := decompressBlob(data)
		if err != nil {
			return nil, status.ErrCorrupt.WrapMessage("revprop pack decompression: %v", err)
		}
		data = plain
	}

	// header and size lines end at the blank separator line
	text := string(data)
	sep := strings.Index(text, "\n\n")
	if sep < 0 {
		return nil, status.ErrCorrupt.WrapMessage("revprop pack misses the blob separator")
	}
	lines := strings.Split(text[:sep], "\n")
	fields := strings.Fields(lines[0])
	if len(fields) != 3 || fields[0] != revpropPackTag {
		return nil, status.ErrCorrupt.WrapMessage("revprop pack header %q", lines[0])
	}
	start, err := model.ParseRevNum(fields[1])
	if err != nil {
		return nil, status.ErrCorrupt.Wrap(err)
	}
	count, err := model.ParseDigits(fields[2])
	if err != nil {
		return nil, status.ErrCorrupt.Wrap(err)
	}
	if int64(len(lines)-1) != count {
		return nil, status.ErrCorrupt.WrapMessage("revprop pack holds %d size lines, header says %d", len(lines)-1, count)
	}

	p := &revpropPack{start: start, blobs: make([][]byte, 0, count)}
	blob := data[sep+2:]
	for _, line := range lines[1:] {
		size, err := model.ParseDigits(line)
		if err != nil {
			return nil, status.ErrCorrupt.Wrap(err)
		}
		if size > int64(len(blob)) {
			return nil, status.ErrCorrupt.WrapMessage("revprop pack truncated: need %d more bytes", size-int64(len(blob)))
		}
		p.blobs = append(p.blobs, blob[:size])
		blob = blob[size:]
	}
	if len(blob) != 0 {
		return nil, status.ErrCorrupt.WrapMessage("revprop pack carries %d trailing bytes", len(blob))
	}
	return p, nil
}

// planRevpropPacks splits a dense blob range into packs honoring the
// size limit. A boundary is placed before any blob whose addition would
// exceed the limit, unless the pack is still empty: an oversized blob
// then gets a pack of its own.
func planRevpropPacks(start model.RevNum, blobs [][]byte, limit int64) []*revpropPack {
	var packs []*revpropPack
	var cur *revpropPack
	var total int64
	for i, b := range blobs {
		if cur == nil || (len(cur.blobs) > 0 && total+int64(len(b)) > limit) {
			cur = &revpropPack{start: start + model.RevNum(i)}
			packs = append(packs, cur)
			total = 0
		}
		cur.blobs = append(cur.blobs, b)
		total += int64(len(b))
	}
	return packs
}

// revpropRange is the revision range of a shard whose properties pack.
// Revision 0 never packs, so shard 0 starts at 1; with a shard size of
// 1 this is the empty range [1, 0].
func revpropRange(f model.Format, shard int64) (model.RevNum, model.RevNum) {
	first := model.ShardStart(shard, f.ShardSize)
	last := first + model.RevNum(f.ShardSize) - 1
	if shard == 0 {
		first = 1
	}
	return first, last
}

// packShardRevprops consolidates the loose property blobs of a shard
// into pack files plus a manifest naming, for every covered revision,
// the pack holding it. Loose files are left in place; the caller
// deletes them once the watermark has moved.
func (r *Repository) packShardRevprops(ctx context.Context, f model.Format, shard int64) error {
	if !f.SupportsPackedRevprops() {
		return nil
	}
	first, last := revpropRange(f, shard)

	blobs := make([][]byte, 0, int(f.ShardSize))
	for rev := first; rev <= last; rev++ {
		data, err := storage.ReadAll(ctx, r.store, model.GetRevpropLoosePath(f, rev))
		if err != nil {
			if errors.Is(err, storagestatus.ErrNotExists) {
				return status.ErrCorrupt.WrapMessage("revision %d has no properties", rev)
			}
			return err
		}
		blobs = append(blobs, data)
	}

	names := make([]string, 0, len(blobs))
	for _, p := range planRevpropPacks(first, blobs, r.config.RevpropPackSize) {
		name := model.RevpropPackName(p.start, 0)
		key := model.GetRevpropPackFilePath(shard, name)
		if err := storage.PutBytes(ctx, r.store, key, p.serialize(r.config.CompressRevprops)); err != nil {
			return err
		}
		for range p.blobs {
			names = append(names, name)
		}
	}
	return storage.PutBytes(ctx, r.store, model.GetRevpropManifestPath(shard), serializeNameManifest(names))
}

func serializeNameManifest(names []string) []byte {
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

func parseNameManifest(data []byte) ([]string, error) {
	names := splitLines(data)
	for _, name := range names {
		if _, _, err := parseRevpropPackName(name); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// parseRevpropPackName splits ‹first-covered-rev›.‹generation›
func parseRevpropPackName(name string) (model.RevNum, int64, error) {
	dot := strings.IndexByte(name, '.')
	if dot < 0 {
		return 0, 0, status.ErrCorrupt.WrapMessage("revprop pack name %q", name)
	}
	start, err := model.ParseRevNum(name[:dot])
	if err != nil {
		return 0, 0, status.ErrCorrupt.WrapMessage("revprop pack name %q: %v", name, err)
	}
	gen, err := model.ParseDigits(name[dot+1:])
	if err != nil {
		return 0, 0, status.ErrCorrupt.WrapMessage("revprop pack name %q: %v", name, err)
	}
	return start, gen, nil
}

func (r *Repository) revpropManifest(ctx context.Context, shard int64) ([]string, error) {
	v, err := r.cachedMeta(ctx, model.GetRevpropManifestPath(shard), func(data []byte) (interface{}, error) {
		return parseNameManifest(data)
	})
	if err != nil {
		return nil, r.packedArtifactError(shard, err)
	}
	return v.([]string), nil
}

// readPackedRevprop extracts the property blob of a packed revision
func (r *Repository) readPackedRevprop(ctx context.Context, f model.Format, rev model.RevNum) ([]byte, error) {
	shard := f.ShardOf(rev)
	name, err := r.revpropPackNameOf(ctx, f, shard, rev)
	if err != nil {
		return nil, err
	}
	pack, err := r.revpropPackBody(ctx, shard, name)
	if err != nil {
		return nil, err
	}
	blob, ok := pack.blobFor(rev)
	if !ok {
		return nil, status.ErrCorrupt.WrapMessage("revprop pack %q does not cover revision %d", name, rev)
	}
	return blob, nil
}

func (r *Repository) revpropPackNameOf(ctx context.Context, f model.Format, shard int64, rev model.RevNum) (string, error) {
	names, err := r.revpropManifest(ctx, shard)
	if err != nil {
		return "", err
	}
	first, _ := revpropRange(f, shard)
	idx := int(rev - first)
	if idx < 0 || idx >= len(names) {
		return "", status.ErrCorrupt.WrapMessage("shard %d revprop manifest has no entry for revision %d", shard, rev)
	}
	return names[idx], nil
}

func (r *Repository) revpropPackBody(ctx context.Context, shard int64, name string) (*revpropPack, error) {
	v, err := r.cachedMeta(ctx, model.GetRevpropPackFilePath(shard, name), func(data []byte) (interface{}, error) {
		return parseRevpropPack(data)
	})
	if err != nil {
		return nil, r.packedArtifactError(shard, err)
	}
	return v.(*revpropPack), nil
}

// setPackedRevprop rewrites the properties of a revision living in a
// revprop pack. The pack is rebuilt under a bumped generation,
// re-split if the new blob moved it across the size limit, and the
// manifest is replaced atomically before the superseded file goes
// away.
func (r *Repository) setPackedRevprop(ctx context.Context, f model.Format, rev model.RevNum, data []byte) error {
	shard := f.ShardOf(rev)
	names, err := r.revpropManifest(ctx, shard)
	if err != nil {
		return err
	}
	first, _ := revpropRange(f, shard)
	idx := int(rev - first)
	if idx < 0 || idx >= len(names) {
		return status.ErrCorrupt.WrapMessage("shard %d revprop manifest has no entry for revision %d", shard, rev)
	}
	oldName := names[idx]
	_, oldGen, err := parseRevpropPackName(oldName)
	if err != nil {
		return err
	}
	old, err := r.revpropPackBody(ctx, shard, oldName)
	if err != nil {
		return err
	}

	blobs := make([][]byte, len(old.blobs))
	copy(blobs, old.blobs)
	target := int(rev - old.start)
	if target < 0 || target >= len(blobs) {
		return status.ErrCorrupt.WrapMessage("revprop pack %q does not cover revision %d", oldName, rev)
	}
	blobs[target] = data

	// write replacements under the next generation
	gen := oldGen + 1
	replacement := make([]string, 0, len(blobs))
	for _, p := range planRevpropPacks(old.start, blobs, r.config.RevpropPackSize) {
		name := model.RevpropPackName(p.start, gen)
		key := model.GetRevpropPackFilePath(shard, name)
		if err := storage.PutBytes(ctx, r.store, key, p.serialize(r.config.CompressRevprops)); err != nil {
			return err
		}
		for range p.blobs {
			replacement = append(replacement, name)
		}
	}

	// swap the covered slice of the manifest, then install it
	updated := make([]string, len(names))
	copy(updated, names)
	base := int(old.start - first)
	for i, name := range replacement {
		updated[base+i] = name
	}
	if err := storage.PutBytes(ctx, r.store, model.GetRevpropManifestPath(shard), serializeNameManifest(updated)); err != nil {
		return err
	}
	return r.store.Delete(ctx, model.GetRevpropPackFilePath(shard, oldName))
}
