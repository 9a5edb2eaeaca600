package factory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/storyforge/internal/model"
)

// Component names, also used as column and archive entry names.
const (
	ComponentProject     = "project"
	ComponentCharacters  = "characters"
	ComponentStories     = "stories"
	ComponentScripts     = "scripts"
	ComponentStoryboards = "storyboards"
	ComponentBible       = "bible"
	ComponentPublishing  = "publishing"
	ComponentMetadata    = "metadata"
)

// ComponentNames lists every component in storage order.
var ComponentNames = []string{
	ComponentProject,
	ComponentCharacters,
	ComponentStories,
	ComponentScripts,
	ComponentStoryboards,
	ComponentBible,
	ComponentPublishing,
	ComponentMetadata,
}

// Components holds one independently encoded blob per aggregate component.
// A nil blob means the component is empty or absent.
type Components struct {
	Project     []byte
	Characters  []byte
	Stories     []byte
	Scripts     []byte
	Storyboards []byte
	Bible       []byte
	Publishing  []byte
	Metadata    []byte
}

// Size returns the total encoded size in bytes.
func (c Components) Size() int {
	return len(c.Project) + len(c.Characters) + len(c.Stories) + len(c.Scripts) +
		len(c.Storyboards) + len(c.Bible) + len(c.Publishing) + len(c.Metadata)
}

// Get returns the blob for a component name.
func (c Components) Get(name string) []byte {
	switch name {
	case ComponentProject:
		return c.Project
	case ComponentCharacters:
		return c.Characters
	case ComponentStories:
		return c.Stories
	case ComponentScripts:
		return c.Scripts
	case ComponentStoryboards:
		return c.Storyboards
	case ComponentBible:
		return c.Bible
	case ComponentPublishing:
		return c.Publishing
	case ComponentMetadata:
		return c.Metadata
	}
	return nil
}

// Set stores the blob for a component name. Unknown names are ignored.
func (c *Components) Set(name string, blob []byte) {
	switch name {
	case ComponentProject:
		c.Project = blob
	case ComponentCharacters:
		c.Characters = blob
	case ComponentStories:
		c.Stories = blob
	case ComponentScripts:
		c.Scripts = blob
	case ComponentStoryboards:
		c.Storyboards = blob
	case ComponentBible:
		c.Bible = blob
	case ComponentPublishing:
		c.Publishing = blob
	case ComponentMetadata:
		c.Metadata = blob
	}
}

// ComponentError reports a single component that failed to decode.
type ComponentError struct {
	Component string
	Err       error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// Serialize encodes every component of f independently.
func Serialize(f *ProjectFactory) (Components, error) {
	var c Components
	var err error
	if c.Project, err = SerializeProject(f.Project); err != nil {
		return Components{}, err
	}
	if c.Characters, err = SerializeCharacters(f.Characters); err != nil {
		return Components{}, err
	}
	if c.Stories, err = SerializeStories(f.Stories); err != nil {
		return Components{}, err
	}
	if c.Scripts, err = SerializeScripts(f.Scripts); err != nil {
		return Components{}, err
	}
	if c.Storyboards, err = SerializeStoryboards(f.Storyboards); err != nil {
		return Components{}, err
	}
	if c.Bible, err = SerializeBible(f.Bible); err != nil {
		return Components{}, err
	}
	if c.Publishing, err = SerializePublishing(f.Publishing); err != nil {
		return Components{}, err
	}
	if c.Metadata, err = SerializeMetadata(f.Metadata); err != nil {
		return Components{}, err
	}
	return c, nil
}

// Deserialize rebuilds a factory from its component blobs. Every component is
// attempted; a failure in one does not stop the others from decoding. If any
// component failed, the partially decoded factory is returned together with
// the joined *ComponentError values and callers should treat it as unreadable.
func Deserialize(projectID string, c Components) (*ProjectFactory, error) {
	f := &ProjectFactory{ProjectID: projectID}
	var errs []error
	note := func(component string, err error) {
		if err != nil {
			errs = append(errs, &ComponentError{Component: component, Err: err})
		}
	}

	var err error
	f.Project, err = DeserializeProject(c.Project)
	note(ComponentProject, err)
	f.Characters, err = DeserializeCharacters(c.Characters)
	note(ComponentCharacters, err)
	f.Stories, err = DeserializeStories(c.Stories)
	note(ComponentStories, err)
	f.Scripts, err = DeserializeScripts(c.Scripts)
	note(ComponentScripts, err)
	f.Storyboards, err = DeserializeStoryboards(c.Storyboards)
	note(ComponentStoryboards, err)
	f.Bible, err = DeserializeBible(c.Bible)
	note(ComponentBible, err)
	f.Publishing, err = DeserializePublishing(c.Publishing)
	note(ComponentPublishing, err)
	f.Metadata, err = DeserializeMetadata(c.Metadata)
	note(ComponentMetadata, err)

	if f.Project.ID == "" {
		f.Project.ID = projectID
	}
	return f, errors.Join(errs...)
}

// FailedComponents lists the component names reported in err.
func FailedComponents(err error) []string {
	var names []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ce, ok := e.(*ComponentError); ok {
			names = append(names, ce.Component)
			return
		}
		if multi, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range multi.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return names
}

// --- project ---

// SerializeProject encodes the project record.
func SerializeProject(p model.Project) ([]byte, error) {
	return json.Marshal(p)
}

// DeserializeProject decodes the project record. The project component is
// mandatory, so an empty blob is an error.
func DeserializeProject(blob []byte) (model.Project, error) {
	var p model.Project
	if len(blob) == 0 {
		return p, errors.New("missing project component")
	}
	err := json.Unmarshal(blob, &p)
	return p, err
}

// --- collections ---

// SerializeCharacters encodes the character list; empty lists encode to nil.
func SerializeCharacters(v []model.Character) ([]byte, error) { return encodeList(v) }

// DeserializeCharacters decodes the character list; nil decodes to an empty list.
func DeserializeCharacters(blob []byte) ([]model.Character, error) { return decodeList[model.Character](blob) }

// SerializeStories encodes the story list.
func SerializeStories(v []model.Story) ([]byte, error) { return encodeList(v) }

// DeserializeStories decodes the story list.
func DeserializeStories(blob []byte) ([]model.Story, error) { return decodeList[model.Story](blob) }

// SerializeScripts encodes the script list.
func SerializeScripts(v []model.Script) ([]byte, error) { return encodeList(v) }

// DeserializeScripts decodes the script list.
func DeserializeScripts(blob []byte) ([]model.Script, error) { return decodeList[model.Script](blob) }

// SerializeStoryboards encodes the storyboard list.
func SerializeStoryboards(v []model.Storyboard) ([]byte, error) { return encodeList(v) }

// DeserializeStoryboards decodes the storyboard list.
func DeserializeStoryboards(blob []byte) ([]model.Storyboard, error) {
	return decodeList[model.Storyboard](blob)
}

func encodeList[T any](v []T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeList[T any](blob []byte) ([]T, error) {
	if len(blob) == 0 {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(blob, &out); err != nil {
		return []T{}, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// --- optional components ---

// SerializeBible encodes the bible; nil encodes to nil.
func SerializeBible(b *model.ProjectBible) ([]byte, error) { return encodeOptional(b) }

// DeserializeBible decodes the bible; nil decodes to nil.
func DeserializeBible(blob []byte) (*model.ProjectBible, error) {
	return decodeOptional[model.ProjectBible](blob)
}

// SerializePublishing encodes the publishing record.
func SerializePublishing(p *model.PublishingProject) ([]byte, error) { return encodeOptional(p) }

// DeserializePublishing decodes the publishing record.
func DeserializePublishing(blob []byte) (*model.PublishingProject, error) {
	return decodeOptional[model.PublishingProject](blob)
}

func encodeOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeOptional[T any](blob []byte) (*T, error) {
	if len(blob) == 0 || string(blob) == "null" {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- metadata ---

// SerializeMetadata encodes the factory metadata.
func SerializeMetadata(m Metadata) ([]byte, error) {
	return json.Marshal(m)
}

// DeserializeMetadata decodes metadata, falling back to DefaultMetadata when
// the blob is absent.
func DeserializeMetadata(blob []byte) (Metadata, error) {
	if len(blob) == 0 {
		return DefaultMetadata(), nil
	}
	m := DefaultMetadata()
	m.IsUser = false
	if err := json.Unmarshal(blob, &m); err != nil {
		return DefaultMetadata(), err
	}
	if m.Version == "" {
		m.Version = MetadataVersion
	}
	return m, nil
}
