package model

import (
	"fmt"
)

// Repository-relative names of the fixed metadata files and directories.
const (
	FormatFile       = "format"
	CurrentFile      = "current"
	MinUnpackedFile  = "min-unpacked-rev"
	UUIDFile         = "uuid"
	ConfigFile       = "config.yaml"
	TxnCurrentFile   = "txn-current"
	RevsDir          = "revs"
	RevpropsDir      = "revprops"
	TxnsDir          = "txns"
	RepCacheDir      = "rep-cache"
	PackFileName     = "pack"
	ManifestFileName = "manifest"
	L2PIndexFileName = "pack.l2p"
	P2LIndexFileName = "pack.p2l"
	PackDirSuffix    = ".pack"
	TxnDirSuffix     = ".txn"
)

// GetRevShardDir returns the directory holding the loose revisions of a shard
func GetRevShardDir(shard int64) string {
	return fmt.Sprint(RevsDir, "/", shard)
}

// GetRevLoosePath returns the loose file of a revision
func GetRevLoosePath(f Format, rev RevNum) string {
	if f.Linear {
		return fmt.Sprint(RevsDir, "/", rev)
	}
	return fmt.Sprint(RevsDir, "/", f.ShardOf(rev), "/", rev)
}

// GetRevPackDir returns the pack directory of a shard
func GetRevPackDir(shard int64) string {
	return fmt.Sprint(RevsDir, "/", shard, PackDirSuffix)
}

// GetRevPackFilePath returns the pack file of a packed shard
func GetRevPackFilePath(shard int64) string {
	return fmt.Sprint(GetRevPackDir(shard), "/", PackFileName)
}

// GetRevPackManifestPath returns the offset manifest of a packed shard
func GetRevPackManifestPath(shard int64) string {
	return fmt.Sprint(GetRevPackDir(shard), "/", ManifestFileName)
}

// GetL2PIndexPath returns the logical-to-physical index of a packed shard
func GetL2PIndexPath(shard int64) string {
	return fmt.Sprint(GetRevPackDir(shard), "/", L2PIndexFileName)
}

// GetP2LIndexPath returns the physical-to-logical index of a packed shard
func GetP2LIndexPath(shard int64) string {
	return fmt.Sprint(GetRevPackDir(shard), "/", P2LIndexFileName)
}

// GetRevpropShardDir returns the directory holding the loose properties of a shard
func GetRevpropShardDir(shard int64) string {
	return fmt.Sprint(RevpropsDir, "/", shard)
}

// GetRevpropLoosePath returns the loose property file of a revision
func GetRevpropLoosePath(f Format, rev RevNum) string {
	if f.Linear {
		return fmt.Sprint(RevpropsDir, "/", rev)
	}
	return fmt.Sprint(RevpropsDir, "/", f.ShardOf(rev), "/", rev)
}

// GetRevpropPackDir returns the revprop pack directory of a shard
func GetRevpropPackDir(shard int64) string {
	return fmt.Sprint(RevpropsDir, "/", shard, PackDirSuffix)
}

// GetRevpropManifestPath returns the revprop manifest of a shard
func GetRevpropManifestPath(shard int64) string {
	return fmt.Sprint(GetRevpropPackDir(shard), "/", ManifestFileName)
}

// GetRevpropPackFilePath returns a named revprop pack file of a shard
func GetRevpropPackFilePath(shard int64, name string) string {
	return fmt.Sprint(GetRevpropPackDir(shard), "/", name)
}

// RevpropPackName builds the name of a revprop pack file from its first
// covered revision and its rewrite generation.
func RevpropPackName(start RevNum, generation int64) string {
	return fmt.Sprint(start, ".", generation)
}

// GetTxnDir returns the staging directory of a transaction
func GetTxnDir(id TxnID) string {
	return fmt.Sprint(TxnsDir, "/", id.String(), TxnDirSuffix)
}

// GetTxnContentPath returns the staged content file of a transaction
func GetTxnContentPath(id TxnID) string {
	return fmt.Sprint(GetTxnDir(id), "/content")
}

// GetTxnPropsPath returns the staged property file of a transaction
func GetTxnPropsPath(id TxnID) string {
	return fmt.Sprint(GetTxnDir(id), "/props")
}
