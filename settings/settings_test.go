package settings

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabidsql/rsqlworker/variant"
)

func TestNode_Get_BubblesToParent(t *testing.T) {
	parent := New("parent", MySQL)
	parent.Set("hostname", variant.NewString("test"))
	parent.Set("port", variant.NewInt32(1234))

	child := New("child", MySQL)
	child.Set("hostname", variant.NewString("test2"))
	child.SetParent(parent)

	assert.Equal(t, "test2", child.Get("hostname", true).String())
	assert.Equal(t, int64(1234), child.Get("port", true).Int())
	assert.True(t, child.Get("port", false).IsNull())
}

func TestNode_Get_NameAndParentNeverBubble(t *testing.T) {
	parent := New("parent", MySQL)
	parent.Set(FieldName, variant.NewString("parent-name"))

	child := New("child", MySQL)
	child.SetParent(parent)
	child.mu.Lock()
	delete(child.values, FieldName)
	child.mu.Unlock()

	assert.True(t, child.Get(FieldName, true).IsNull())
}

func TestNode_UUID_LazilyGeneratedAndCached(t *testing.T) {
	n := New("n", MySQL)
	first := n.Get(FieldUUID, true)
	second := n.Get(FieldUUID, true)
	assert.Equal(t, first.String(), second.String())
	assert.NotEmpty(t, first.String())
}

func TestRoundTrip_Binary_ParentChild(t *testing.T) {
	parent := New("parent", MySQL)
	parent.Set("hostname", variant.NewString("test"))
	parent.Set("port", variant.NewInt32(1234))

	child := New("child", MySQL)
	child.Set("hostname", variant.NewString("test2"))
	child.Set("port", variant.NewInt32(3306))
	child.SetParent(parent)

	var buf bytes.Buffer
	require.NoError(t, SaveTo(&buf, []*Node{parent, child}, FormatBinary))

	reloaded, err := LoadFrom(&buf, FormatBinary)
	require.NoError(t, err)
	require.Len(t, reloaded, 2)

	var reloadedParent, reloadedChild *Node
	for _, n := range reloaded {
		if n.Get(FieldName, false).String() == "parent" {
			reloadedParent = n
		} else {
			reloadedChild = n
		}
	}
	require.NotNil(t, reloadedParent)
	require.NotNil(t, reloadedChild)

	assert.Equal(t, "test", reloadedParent.Get("hostname", false).String())
	assert.Equal(t, int64(1234), reloadedParent.Get("port", false).Int())
	assert.Equal(t, reloadedParent, reloadedChild.Parent())
	assert.Equal(t, "test2", reloadedChild.Get("hostname", true).String())
}

func TestLoad_EmptyFile_YieldsDefaultNode(t *testing.T) {
	nodes, err := LoadFrom(&bytes.Buffer{}, FormatBinary)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, DefaultNodeName, nodes[0].Get(FieldName, false).String())
	assert.Equal(t, MySQL.String(), nodes[0].Get("type", false).String())
}

func TestCacheBlob_RoundTrip_ParentChild(t *testing.T) {
	parent := New("parent", MySQL)
	parent.Set("hostname", variant.NewString("test"))
	child := New("child", MySQL)
	child.Set("hostname", variant.NewString("test2"))
	child.SetParent(parent)

	blob, err := CacheBlob([]*Node{parent, child})
	require.NoError(t, err)

	reloaded, err := FromCacheBlob(blob)
	require.NoError(t, err)
	require.Len(t, reloaded, 2)

	var reloadedParent, reloadedChild *Node
	for _, n := range reloaded {
		if n.Get(FieldName, false).String() == "parent" {
			reloadedParent = n
		} else {
			reloadedChild = n
		}
	}
	require.NotNil(t, reloadedParent)
	require.NotNil(t, reloadedChild)
	assert.Equal(t, reloadedParent, reloadedChild.Parent())
	assert.Equal(t, "test2", reloadedChild.Get("hostname", false).String())
}

func TestNode_Validate_UnknownTypeDefaultsToMySQLAtRoot(t *testing.T) {
	n := New("root", MySQL)
	n.Set(FieldType, variant.NewString("Oracle"))
	require.NoError(t, n.Validate())
	assert.Equal(t, MySQL.String(), n.Get(FieldType, false).String())
}

func TestNode_Validate_MissingTypeOnChildBecomesInherit(t *testing.T) {
	parent := New("parent", PostgreSQL)
	child := New("child", MySQL)
	child.mu.Lock()
	delete(child.values, FieldType)
	child.mu.Unlock()
	child.SetParent(parent)

	require.NoError(t, child.Validate())
	assert.Equal(t, Inherit.String(), child.Get(FieldType, false).String())
}

func TestNode_Validate_MissingNameIsAnError(t *testing.T) {
	n := New("n", MySQL)
	n.mu.Lock()
	delete(n.values, FieldName)
	n.mu.Unlock()

	assert.Error(t, n.Validate())
}

func TestSave_OnlyRootLevelNodesWrittenDirectly(t *testing.T) {
	parent := New("parent", MySQL)
	child := New("child", MySQL)
	child.SetParent(parent)

	var buf bytes.Buffer
	require.NoError(t, SaveTo(&buf, []*Node{parent, child}, FormatJSON))

	reloaded, err := LoadFrom(bytes.NewReader(buf.Bytes()), FormatJSON)
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
}
