package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevisionPaths(t *testing.T) {
	sharded := Format{Number: 7, ShardSize: 7, Logical: true}
	assert.Equal(t, "revs/0/0", GetRevLoosePath(sharded, 0))
	assert.Equal(t, "revs/0/6", GetRevLoosePath(sharded, 6))
	assert.Equal(t, "revs/7/53", GetRevLoosePath(sharded, 53))
	assert.Equal(t, "revs/2.pack/pack", GetRevPackFilePath(2))
	assert.Equal(t, "revs/2.pack/manifest", GetRevPackManifestPath(2))
	assert.Equal(t, "revs/2.pack/pack.l2p", GetL2PIndexPath(2))
	assert.Equal(t, "revs/2.pack/pack.p2l", GetP2LIndexPath(2))

	linear := Format{Number: 3, Linear: true}
	assert.Equal(t, "revs/42", GetRevLoosePath(linear, 42))
}

func TestRevpropPaths(t *testing.T) {
	f := Format{Number: 7, ShardSize: 4, Logical: true}
	assert.Equal(t, "revprops/0/0", GetRevpropLoosePath(f, 0))
	assert.Equal(t, "revprops/2/11", GetRevpropLoosePath(f, 11))
	assert.Equal(t, "revprops/3.pack/manifest", GetRevpropManifestPath(3))
	assert.Equal(t, "12.0", RevpropPackName(12, 0))
	assert.Equal(t, "revprops/3.pack/12.1", GetRevpropPackFilePath(3, RevpropPackName(12, 1)))
}

func TestTxnPaths(t *testing.T) {
	id := TxnID{Base: 10, Counter: 3}
	assert.Equal(t, "txns/10-3.txn", GetTxnDir(id))
	assert.Equal(t, "txns/10-3.txn/content", GetTxnContentPath(id))
	assert.Equal(t, "txns/10-3.txn/props", GetTxnPropsPath(id))
}
