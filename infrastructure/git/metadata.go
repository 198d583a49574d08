package git

import "path/filepath"

// LanguageFromPath maps a file path to a language identifier based on
// its extension. Unknown extensions fall through as themselves.
func LanguageFromPath(path string) string {
	ext := extensionFromPath(path)
	if ext == "" {
		return ""
	}

	switch ext {
	case "go":
		return "go"
	case "py":
		return "python"
	case "js", "jsx", "mjs":
		return "javascript"
	case "ts", "tsx":
		return "typescript"
	case "rb":
		return "ruby"
	case "rs":
		return "rust"
	case "java":
		return "java"
	case "c", "h":
		return "c"
	case "cpp", "cc", "cxx", "hpp":
		return "cpp"
	case "cs":
		return "csharp"
	case "php":
		return "php"
	case "swift":
		return "swift"
	case "kt", "kts":
		return "kotlin"
	case "scala":
		return "scala"
	case "sh", "bash":
		return "shell"
	case "sql":
		return "sql"
	case "md", "markdown":
		return "markdown"
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	case "xml":
		return "xml"
	case "html", "htm":
		return "html"
	case "css":
		return "css"
	case "scss", "sass":
		return "scss"
	case "vue":
		return "vue"
	case "svelte":
		return "svelte"
	default:
		return ext
	}
}

// MIMETypeFromPath maps a file path to the MIME type served for file
// resources. Unknown extensions default to text/plain.
func MIMETypeFromPath(path string) string {
	switch extensionFromPath(path) {
	case "go":
		return "text/x-go"
	case "py":
		return "text/x-python"
	case "js", "jsx", "mjs":
		return "text/javascript"
	case "ts", "tsx":
		return "text/typescript"
	case "java":
		return "text/x-java-source"
	case "c", "h":
		return "text/x-c"
	case "cpp", "cc", "cxx", "hpp":
		return "text/x-c++"
	case "cs":
		return "text/x-csharp"
	case "rs":
		return "text/x-rust"
	case "rb":
		return "text/x-ruby"
	case "php":
		return "text/x-php"
	case "swift":
		return "text/x-swift"
	case "kt", "kts":
		return "text/x-kotlin"
	case "scala":
		return "text/x-scala"
	case "sh", "bash":
		return "text/x-shellscript"
	case "sql":
		return "text/x-sql"
	case "md", "markdown":
		return "text/markdown"
	case "json":
		return "application/json"
	case "yaml", "yml":
		return "text/yaml"
	case "toml":
		return "application/toml"
	case "xml":
		return "application/xml"
	case "html", "htm":
		return "text/html"
	case "css":
		return "text/css"
	case "scss", "sass":
		return "text/scss"
	default:
		return "text/plain"
	}
}

func extensionFromPath(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return ext[1:]
}
