package usecase

import (
	"fmt"
	"strings"

	"query-assistant/internal/domain"
)

// PromptInput carries everything the assembler is allowed to look at. History
// is expected newest-first, the order History Stores return it in.
type PromptInput struct {
	Schema  string
	History []domain.Turn
	Input   string
	Mode    domain.Mode
	Dialect domain.Dialect
}

type dialectTerms struct {
	name     string
	store    string
	entity   string
	entities string
	union    string
}

func termsFor(d domain.Dialect) dialectTerms {
	if d == domain.DialectRelational {
		return dialectTerms{
			name:     "SQL",
			store:    "relational database",
			entity:   "table",
			entities: "tables",
			union:    "UNION",
		}
	}
	return dialectTerms{
		name:     "MongoDB",
		store:    "NoSQL database",
		entity:   "collection",
		entities: "collections",
		union:    "a $unionWith stage inside aggregate()",
	}
}

// AssemblePrompt renders the instruction text sent to the model. It is pure:
// identical input always yields byte-identical output.
func AssemblePrompt(in PromptInput) (string, error) {
	if strings.TrimSpace(in.Input) == "" {
		return "", missingInputError(in.Mode)
	}
	schema := domain.NormalizeSchema(in.Schema)
	terms := termsFor(in.Dialect)

	switch in.Mode {
	case domain.ModeChat:
		return buildChatPrompt(schema, terms, in.History, in.Input), nil
	case domain.ModeQueryGeneration:
		return buildQueryPrompt(schema, terms, in.Input), nil
	default:
		return "", newError(ErrorInternal, "unknown_mode", "Unsupported request mode", fmt.Errorf("usecase: unknown mode %s", in.Mode))
	}
}

func missingInputError(mode domain.Mode) *Error {
	if mode == domain.ModeQueryGeneration {
		return newError(ErrorInvalidInput, "empty_query", "Query is required", nil)
	}
	return newError(ErrorInvalidInput, "empty_prompt", "Prompt is required", nil)
}

func buildChatPrompt(schema string, t dialectTerms, history []domain.Turn, input string) string {
	historySection := "Chat history:"
	if lines := renderHistory(history); lines != "" {
		historySection += "\n" + lines
	}
	return strings.Join([]string{
		fmt.Sprintf("You are a %s database assistant. You help users analyze data and generate %s queries.\n"+
			"Your task is to provide %s queries based on the following %s schema:", t.name, t.name, t.name, t.store),
		"Database schema:\n" + schema,
		"Guidelines:\n" + chatGuidelines(t),
		historySection,
		"Use the chat history to provide relevant answers.",
		"User: " + input + "\nAI:",
	}, "\n\n")
}

func buildQueryPrompt(schema string, t dialectTerms, request string) string {
	return strings.Join([]string{
		fmt.Sprintf("You are a %s query generator. Convert the request below into a single optimized %s query "+
			"against the following %s schema.", t.name, t.name, t.store),
		"Database schema:\n" + schema,
		"Rules:\n" + queryRules(t),
		"Request:\n" + request,
	}, "\n\n")
}

// renderHistory lists the window oldest-first. Turns missing either side are
// skipped rather than rendered half-empty.
func renderHistory(history []domain.Turn) string {
	lines := make([]string, 0, len(history)*2)
	for i := len(history) - 1; i >= 0; i-- {
		input := strings.TrimSpace(history[i].Input)
		output := strings.TrimSpace(history[i].Output)
		if input == "" || output == "" {
			continue
		}
		lines = append(lines, "User: "+input, "AI: "+output)
	}
	return strings.Join(lines, "\n")
}

func chatGuidelines(t dialectTerms) string {
	if t.name == "SQL" {
		return strings.Join([]string{
			"- Always return queries in **standard SQL**.",
			"- Do NOT return MongoDB queries.",
			"- Use statements such as **SELECT, INSERT, UPDATE, DELETE** with explicit column lists.",
			"- Ensure the output is a properly formatted SQL query.",
			"- output should only have query, NOTHING extra",
		}, "\n")
	}
	return strings.Join([]string{
		"- Always return queries in **MongoDB format**, using JavaScript JSON syntax.",
		"- Do NOT return SQL queries.",
		"- Use MongoDB methods such as **find(), aggregate(), updateOne(), insertOne(), deleteOne()**.",
		"- Ensure the output is a properly formatted MongoDB query.",
		"- output should only have query, NOTHING extra",
	}, "\n")
}

func queryRules(t dialectTerms) string {
	return strings.Join([]string{
		"1) Return only the query. No explanations, comments, or markdown code fences.",
		fmt.Sprintf("2) Use only the %s and fields defined in the schema.", t.entities),
		fmt.Sprintf("3) Check every %s in the schema for the fields the request mentions, not just the first match.", t.entity),
		fmt.Sprintf("4) When the requested values exist in more than one %s (for example \"all distinct clients\"), "+
			"combine the results from every %s that contains that field using %s.", t.entity, t.entity, t.union),
		"5) Filter as early as possible and select only the fields the request needs.",
	}, "\n")
}
