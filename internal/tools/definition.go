package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/neoclaw-ai/completions/internal/provider"
)

// Built-in tool names.
const (
	NameCallPrompt      = "call_prompt"
	NameSearchWeb       = "search_web"
	NameDatasetSearch   = "dataset_search"
	NameDatasetQuery    = "dataset_query"
	NameBrowseWeb       = "browse_web"
	NameRetrieveWeb     = "retrieve_web"
	NameParseFile       = "parse_file"
	NameIntercomReplyTo = "intercom_reply_to"
	NameImageAnalysis   = "image_analysis"
)

// CallPromptArgs are the arguments of call_prompt.
type CallPromptArgs struct {
	PromptID  string            `json:"prompt_id" jsonschema:"required,description=Identifier of the saved prompt to run"`
	Input     string            `json:"input,omitempty" jsonschema:"description=User message passed to the prompt"`
	Variables map[string]string `json:"variables,omitempty" jsonschema:"description=Template variables for the prompt"`
}

// SearchWebArgs are the arguments of search_web.
type SearchWebArgs struct {
	Query string `json:"query" jsonschema:"required,description=Search query text"`
	Count int    `json:"count,omitempty" jsonschema:"description=Maximum number of results (1-20)"`
}

// DatasetSearchArgs are the arguments of dataset_search.
type DatasetSearchArgs struct {
	Dataset string `json:"dataset" jsonschema:"required,description=Name of the dataset table to search"`
	Query   string `json:"query" jsonschema:"required,description=Text to look for in any column"`
	Limit   int    `json:"limit,omitempty" jsonschema:"description=Maximum number of rows to return"`
}

// DatasetQueryArgs are the arguments of dataset_query.
type DatasetQueryArgs struct {
	Query string `json:"query" jsonschema:"required,description=A single read-only SQL SELECT or WITH statement"`
}

// BrowseWebArgs are the arguments of browse_web.
type BrowseWebArgs struct {
	URL string `json:"url" jsonschema:"required,description=Absolute HTTP or HTTPS URL of the page"`
}

// RetrieveWebArgs are the arguments of retrieve_web.
type RetrieveWebArgs struct {
	URL string `json:"url" jsonschema:"required,description=Absolute HTTP or HTTPS URL to fetch"`
}

// ParseFileArgs are the arguments of parse_file.
type ParseFileArgs struct {
	URL string `json:"url" jsonschema:"required,description=URL of the file to read"`
}

// IntercomReplyToArgs are the arguments of intercom_reply_to.
type IntercomReplyToArgs struct {
	ConversationID string `json:"conversation_id" jsonschema:"required,description=Intercom conversation to reply to"`
	Message        string `json:"message" jsonschema:"required,description=Reply body"`
}

// ImageAnalysisArgs are the arguments of image_analysis.
type ImageAnalysisArgs struct {
	ImageURL string `json:"image_url" jsonschema:"required,description=URL of the image to analyse"`
	Question string `json:"question,omitempty" jsonschema:"description=What to look for in the image"`
}

type definition struct {
	name        string
	description string
	args        any
}

var definitions = []definition{
	{NameCallPrompt, "Run another saved prompt and return its completion", CallPromptArgs{}},
	{NameSearchWeb, "Search the web and return titles, URLs, and snippets", SearchWebArgs{}},
	{NameDatasetSearch, "Search a dataset table for rows containing text", DatasetSearchArgs{}},
	{NameDatasetQuery, "Run a read-only SQL query against the account datasets", DatasetQueryArgs{}},
	{NameBrowseWeb, "Open a web page and return its title, readable content, and links", BrowseWebArgs{}},
	{NameRetrieveWeb, "Fetch a URL and return its content as markdown", RetrieveWebArgs{}},
	{NameParseFile, "Download a text, markdown, JSON, CSV, or HTML file and return its contents", ParseFileArgs{}},
	{NameIntercomReplyTo, "Reply to an Intercom conversation", IntercomReplyToArgs{}},
	{NameImageAnalysis, "Describe or answer a question about an image", ImageAnalysisArgs{}},
}

// Definitions returns the provider-neutral config of every built-in tool.
func Definitions() []provider.ToolConfig {
	out := make([]provider.ToolConfig, 0, len(definitions))
	for _, def := range definitions {
		out = append(out, provider.ToolConfig{
			Name:        def.name,
			Description: def.description,
			Parameters:  schemaFor(def.args),
		})
	}
	return out
}

func schemaFor(args any) map[string]any {
	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
	}
	schema := reflector.Reflect(args)
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("marshal tool schema: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("decode tool schema: %v", err))
	}
	delete(out, "$schema")
	delete(out, "$id")
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out
}
