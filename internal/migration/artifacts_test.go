package migration

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// artifactJSON builds a Truffle artifact whose constructor takes len(inputs) args
func artifactJSON(name, bytecode string, inputs ...string) []byte {
	abiJSON := "[]"
	if len(inputs) > 0 {
		params := make([]string, len(inputs))
		for i, typ := range inputs {
			params[i] = fmt.Sprintf(`{"name":"a%d","type":%q}`, i, typ)
		}
		abiJSON = fmt.Sprintf(`[{"type":"constructor","stateMutability":"nonpayable","inputs":[%s]}]`, strings.Join(params, ","))
	}
	return []byte(fmt.Sprintf(`{"contractName":%q,"abi":%s,"bytecode":%q}`, name, abiJSON, bytecode))
}

func mustArtifact(t testing.TB, name, bytecode string, inputs ...string) *Artifact {
	t.Helper()
	a, err := ParseArtifact(artifactJSON(name, bytecode, inputs...))
	require.NoError(t, err)
	return a
}

// memArtifacts is an in-memory ArtifactSource
type memArtifacts map[string]*Artifact

func (m memArtifacts) Load(name string) (*Artifact, error) {
	a, ok := m[name]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeArtifact, "Artifact not found", name)
	}
	return a, nil
}

func TestParseArtifact(t *testing.T) {
	a := mustArtifact(t, "Whitelist", "0x6080604052", "address")
	assert.Equal(t, "Whitelist", a.ContractName)
	assert.Equal(t, "6080604052", a.Bytecode)
	assert.Equal(t, 1, a.ConstructorInputs())

	foundry := []byte(`{
		"abi": [],
		"bytecode": {"object": "0x6001", "linkReferences": {"src/Lib.sol": {"Lib": [{"start": 1, "length": 20}]}}}
	}`)
	a, err := ParseArtifact(foundry)
	require.NoError(t, err)
	assert.Equal(t, "6001", a.Bytecode)
	assert.Equal(t, []LinkOffset{{Start: 1, Length: 20}}, a.LinkReferences["src/Lib.sol"]["Lib"])
	assert.Equal(t, 0, a.ConstructorInputs())

	_, err = ParseArtifact([]byte(`{"contractName":"X","abi":[],"bytecode":"0x"}`))
	assert.True(t, utils.HasCode(err, utils.ErrCodeArtifact))

	_, err = ParseArtifact([]byte(`{"contractName":"X","bytecode":"0x60"}`))
	assert.True(t, utils.HasCode(err, utils.ErrCodeArtifact))

	_, err = ParseArtifact([]byte(`not json`))
	assert.True(t, utils.HasCode(err, utils.ErrCodeArtifact))
}

func TestPlaceholder(t *testing.T) {
	p := Placeholder("MarginVault")
	assert.Len(t, p, 40)
	assert.True(t, strings.HasPrefix(p, "__MarginVault_"))

	long := Placeholder(strings.Repeat("X", 50))
	assert.Len(t, long, 40)
}

func TestLinkTrufflePlaceholder(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	a := mustArtifact(t, "Controller", "6080"+Placeholder("MarginVault")+"00")

	_, err := a.DeployData()
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeArtifact))
	assert.Contains(t, err.Error(), "MarginVault")

	linked := a.Link(map[string]common.Address{"MarginVault": vault})
	assert.Equal(t, "6080"+hex.EncodeToString(vault.Bytes())+"00", linked.Bytecode)
	assert.Contains(t, a.Bytecode, "__", "Link must not modify the original")

	code, err := linked.DeployData()
	require.NoError(t, err)
	assert.Equal(t, append([]byte{0x60, 0x80}, append(vault.Bytes(), 0x00)...), code)
}

func TestLinkHardhatReferences(t *testing.T) {
	vault := common.HexToAddress("0x1111111111111111111111111111111111111111")
	placeholder := "__$" + strings.Repeat("ab", 17) + "$__"
	data := []byte(fmt.Sprintf(`{
		"contractName": "Controller",
		"abi": [],
		"bytecode": "0x6080%s00",
		"linkReferences": {"contracts/libs/MarginVault.sol": {"MarginVault": [{"start": 2, "length": 20}]}}
	}`, placeholder))
	a, err := ParseArtifact(data)
	require.NoError(t, err)

	lib, ok := a.Unlinked()
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("ab", 17), lib)

	linked := a.Link(map[string]common.Address{"MarginVault": vault})
	_, ok = linked.Unlinked()
	assert.False(t, ok)
	assert.Equal(t, "6080"+hex.EncodeToString(vault.Bytes())+"00", linked.Bytecode)
}

func TestDeployDataPacksConstructor(t *testing.T) {
	book := common.HexToAddress("0x9a33230f59Cc7Cc9A084E0098A2b2934FC7BF7c0")
	a := mustArtifact(t, "MarginPool", "60806040", "address")

	code, err := a.DeployData(book)
	require.NoError(t, err)
	require.Len(t, code, 4+32)
	assert.Equal(t, common.LeftPadBytes(book.Bytes(), 32), code[4:])

	_, err = a.DeployData()
	assert.True(t, utils.HasCode(err, utils.ErrCodeArtifact))
}

func TestDirArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Oracle.json"), artifactJSON("Oracle", "0x6080"), 0o644))

	nested := filepath.Join(dir, "contracts", "core", "Whitelist.sol")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "Whitelist.dbg.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "Whitelist.json"), artifactJSON("Whitelist", "0x6081", "address"), 0o644))

	src := NewDirArtifacts(dir)

	oracle, err := src.Load("Oracle")
	require.NoError(t, err)
	assert.Equal(t, "6080", oracle.Bytecode)

	whitelist, err := src.Load("Whitelist")
	require.NoError(t, err)
	assert.Equal(t, "6081", whitelist.Bytecode)
	assert.Equal(t, 1, whitelist.ConstructorInputs())

	again, err := src.Load("Whitelist")
	require.NoError(t, err)
	assert.Same(t, whitelist, again)

	_, err = src.Load("MarginPool")
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeArtifact))
}
