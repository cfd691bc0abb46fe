package migration

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// placeholderLen is the hex length of an unlinked library address
const placeholderLen = 2 * common.AddressLength

// LinkOffset is the byte position of a library address in bytecode
type LinkOffset struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Artifact is a compiled contract: its ABI and creation bytecode
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	// Bytecode is hex without 0x. It may contain library placeholders.
	Bytecode string
	// LinkReferences maps source file to library name to offsets
	LinkReferences map[string]map[string][]LinkOffset
}

type rawArtifact struct {
	ContractName   string                             `json:"contractName"`
	ABI            json.RawMessage                    `json:"abi"`
	Bytecode       json.RawMessage                    `json:"bytecode"`
	LinkReferences map[string]map[string][]LinkOffset `json:"linkReferences"`
}

type rawBytecodeObject struct {
	Object         string                             `json:"object"`
	LinkReferences map[string]map[string][]LinkOffset `json:"linkReferences"`
}

// ParseArtifact decodes a Truffle, Hardhat or Foundry artifact
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeArtifact, "Invalid artifact JSON", err.Error())
	}
	if len(raw.ABI) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeArtifact, "Artifact has no ABI", raw.ContractName)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeArtifact, "Invalid artifact ABI", fmt.Sprintf("%s: %v", raw.ContractName, err))
	}

	a := &Artifact{
		ContractName:   raw.ContractName,
		ABI:            parsed,
		LinkReferences: raw.LinkReferences,
	}

	trimmed := bytes.TrimSpace(raw.Bytecode)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &a.Bytecode); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeArtifact, "Invalid artifact bytecode", err.Error())
		}
	default:
		var obj rawBytecodeObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeArtifact, "Invalid artifact bytecode", err.Error())
		}
		a.Bytecode = obj.Object
		if len(obj.LinkReferences) > 0 {
			a.LinkReferences = obj.LinkReferences
		}
	}

	a.Bytecode = strings.TrimPrefix(strings.TrimPrefix(a.Bytecode, "0x"), "0X")
	if a.Bytecode == "" {
		return nil, utils.NewAppError(utils.ErrCodeArtifact, "Artifact has no bytecode", raw.ContractName)
	}
	return a, nil
}

// Placeholder returns the Truffle placeholder solc emits for library name
func Placeholder(name string) string {
	p := "__" + name
	if len(p) > placeholderLen {
		p = p[:placeholderLen]
	}
	return p + strings.Repeat("_", placeholderLen-len(p))
}

// Link returns a copy of a with the given libraries linked in
func (a *Artifact) Link(libs map[string]common.Address) *Artifact {
	linked := *a
	code := []byte(a.Bytecode)

	for _, fileRefs := range a.LinkReferences {
		for name, offsets := range fileRefs {
			addr, ok := libs[name]
			if !ok {
				continue
			}
			hexAddr := hex.EncodeToString(addr.Bytes())
			for _, off := range offsets {
				start := off.Start * 2
				if start < 0 || start+placeholderLen > len(code) {
					continue
				}
				copy(code[start:start+placeholderLen], hexAddr)
			}
		}
	}

	linked.Bytecode = string(code)
	for name, addr := range libs {
		linked.Bytecode = strings.ReplaceAll(linked.Bytecode, Placeholder(name), hex.EncodeToString(addr.Bytes()))
	}
	return &linked
}

// Unlinked returns the first library placeholder left in the bytecode
func (a *Artifact) Unlinked() (string, bool) {
	i := strings.Index(a.Bytecode, "__")
	if i < 0 {
		return "", false
	}
	end := i + placeholderLen
	if end > len(a.Bytecode) {
		end = len(a.Bytecode)
	}
	return strings.Trim(a.Bytecode[i:end], "_$"), true
}

// DeployData returns the creation bytecode followed by the packed constructor args
func (a *Artifact) DeployData(args ...any) ([]byte, error) {
	if lib, ok := a.Unlinked(); ok {
		return nil, utils.NewAppError(utils.ErrCodeArtifact, "Bytecode has an unlinked library", fmt.Sprintf("%s: %s", a.ContractName, lib))
	}

	code, err := hex.DecodeString(a.Bytecode)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeArtifact, "Invalid bytecode hex", fmt.Sprintf("%s: %v", a.ContractName, err))
	}

	packed, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeArtifact, "Failed to pack constructor arguments", fmt.Sprintf("%s: %v", a.ContractName, err))
	}
	return append(code, packed...), nil
}

// ConstructorInputs is the number of constructor parameters
func (a *Artifact) ConstructorInputs() int {
	return len(a.ABI.Constructor.Inputs)
}

// ArtifactSource loads artifacts by contract name
type ArtifactSource interface {
	Load(name string) (*Artifact, error)
}

// DirArtifacts loads artifacts from a build directory. Truffle's flat
// <dir>/<Name>.json layout is tried first, then the tree is searched for
// Hardhat's <dir>/**/<Name>.sol/<Name>.json.
type DirArtifacts struct {
	dir   string
	cache map[string]*Artifact
}

// NewDirArtifacts creates a loader rooted at dir
func NewDirArtifacts(dir string) *DirArtifacts {
	return &DirArtifacts{dir: dir, cache: make(map[string]*Artifact)}
}

// Load implements ArtifactSource
func (d *DirArtifacts) Load(name string) (*Artifact, error) {
	if a, ok := d.cache[name]; ok {
		return a, nil
	}

	path, err := d.find(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeArtifact, "Failed to read artifact", err.Error())
	}

	a, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if a.ContractName == "" {
		a.ContractName = name
	}
	d.cache[name] = a
	return a, nil
}

var errFound = errors.New("found")

func (d *DirArtifacts) find(name string) (string, error) {
	flat := filepath.Join(d.dir, name+".json")
	if _, err := os.Stat(flat); err == nil {
		return flat, nil
	}

	var found string
	err := filepath.WalkDir(d.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && entry.Name() == name+".json" && !strings.HasSuffix(path, ".dbg.json") {
			found = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", utils.NewAppError(utils.ErrCodeArtifact, "Failed to search artifacts", err.Error())
	}
	if found == "" {
		return "", utils.NewAppError(utils.ErrCodeArtifact, "Artifact not found", fmt.Sprintf("%s in %s", name, d.dir))
	}
	return found, nil
}
