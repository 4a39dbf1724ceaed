package graph

// ProjectProps are the properties of a Project node.
type ProjectProps struct {
	ProjectID string
	Name      string
	Root      string
}

func (p ProjectProps) Properties() Properties {
	return Properties{
		PropProjectID: p.ProjectID,
		PropName:      p.Name,
		"root":        p.Root,
	}
}

// DirectoryProps are the properties of a Directory node.
type DirectoryProps struct {
	Path         string
	RelativePath string
	Name         string
	ProjectID    string
}

func (p DirectoryProps) Properties() Properties {
	return Properties{
		PropPath:         p.Path,
		PropRelativePath: p.RelativePath,
		PropName:         p.Name,
		PropProjectID:    p.ProjectID,
	}
}

// FileProps are the properties of a File node and its media/document subtypes.
type FileProps struct {
	Path         string
	RelativePath string
	Name         string
	Extension    string
	Format       string
	Language     string
	ProjectID    string
	ContentHash  string
	Content      string
}

func (p FileProps) Properties() Properties {
	props := Properties{
		PropPath:         p.Path,
		PropRelativePath: p.RelativePath,
		PropFilePath:     p.Path,
		PropName:         p.Name,
		"extension":      p.Extension,
		"format":         p.Format,
		PropProjectID:    p.ProjectID,
		PropContentHash:  p.ContentHash,
	}
	if p.Language != "" {
		props["language"] = p.Language
	}
	if p.Content != "" {
		props["content"] = p.Content
	}
	return props
}

// ScopeProps are the properties of a code Scope node.
type ScopeProps struct {
	Name       string
	Kind       string
	FilePath   string
	ProjectID  string
	Language   string
	StartLine  int
	EndLine    int
	Signature  string
	ParentName string
	Content    string
	Exported   bool
	// Modifiers, Decorators and Generics are stored comma-joined.
	Modifiers   string
	Decorators  string
	Generics    string
	ContentHash string
}

func (p ScopeProps) Properties() Properties {
	props := Properties{
		PropName:        p.Name,
		"kind":          p.Kind,
		PropFilePath:    p.FilePath,
		PropProjectID:   p.ProjectID,
		"language":      p.Language,
		"startLine":     p.StartLine,
		"endLine":       p.EndLine,
		"signature":     p.Signature,
		"content":       p.Content,
		"exported":      p.Exported,
		PropContentHash: p.ContentHash,
	}
	if p.ParentName != "" {
		props["parentName"] = p.ParentName
	}
	if p.Modifiers != "" {
		props["modifiers"] = p.Modifiers
	}
	if p.Decorators != "" {
		props["decorators"] = p.Decorators
	}
	if p.Generics != "" {
		props["generics"] = p.Generics
	}
	return props
}

// DocumentProps are the properties of a MarkdownDocument node.
type DocumentProps struct {
	Title       string
	FilePath    string
	ProjectID   string
	Content     string
	ContentHash string
}

func (p DocumentProps) Properties() Properties {
	return Properties{
		PropName:        p.Title,
		PropFilePath:    p.FilePath,
		PropProjectID:   p.ProjectID,
		"content":       p.Content,
		PropContentHash: p.ContentHash,
	}
}

// SectionProps are the properties of a MarkdownSection node.
type SectionProps struct {
	Title       string
	Level       int
	Ordinal     int
	FilePath    string
	ProjectID   string
	StartLine   int
	EndLine     int
	Content     string
	ContentHash string
}

func (p SectionProps) Properties() Properties {
	return Properties{
		PropName:        p.Title,
		"level":         p.Level,
		"ordinal":       p.Ordinal,
		PropFilePath:    p.FilePath,
		PropProjectID:   p.ProjectID,
		"startLine":     p.StartLine,
		"endLine":       p.EndLine,
		"content":       p.Content,
		PropContentHash: p.ContentHash,
	}
}

// LibraryProps are the properties of an ExternalLibrary node.
type LibraryProps struct {
	Name      string
	ProjectID string
}

func (p LibraryProps) Properties() Properties {
	return Properties{
		PropName:      p.Name,
		PropProjectID: p.ProjectID,
	}
}

// URLProps are the properties of an ExternalURL node.
type URLProps struct {
	URL       string
	Host      string
	ProjectID string
}

func (p URLProps) Properties() Properties {
	return Properties{
		"url":         p.URL,
		"host":        p.Host,
		PropName:      p.URL,
		PropProjectID: p.ProjectID,
	}
}
