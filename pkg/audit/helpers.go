package audit

import (
	"net/http"
	"strings"
)

// target is what an audited request acted on.
type target struct {
	Kind       string
	ResourceID string
	Action     string
}

// describe maps a CRM API request to its audit target. It reports false for
// requests that are not audited: reads, previews and paths outside basePath.
func describe(method, basePath, path string) (target, bool) {
	if !isMutating(method) {
		return target{}, false
	}
	rest, ok := strings.CutPrefix(path, basePath)
	if !ok {
		return target{}, false
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return target{}, false
	}

	switch parts[0] {
	case "history":
		if len(parts) == 3 && parts[2] == "void" {
			return target{ResourceID: parts[1], Action: "void-history"}, true
		}
	case "contracts":
		return describeContract(method, parts[1:]), true
	case "pipeline", "contract":
		return describeKind(method, parts[0], parts[1:])
	}
	return target{Action: actionFromMethod(method)}, true
}

// describeContract covers the dedicated contract routes.
func describeContract(method string, parts []string) target {
	t := target{Kind: "contract"}
	switch {
	case len(parts) == 0:
		t.Action = "create-subject"
	case parts[0] == "statuses":
		t.Action = "create-state"
	case len(parts) == 2 && parts[1] == "status":
		t.ResourceID = parts[0]
		t.Action = "transition"
	default:
		t.Action = actionFromMethod(method)
	}
	return t
}

func describeKind(method, kind string, parts []string) (target, bool) {
	t := target{Kind: kind}
	switch {
	case len(parts) == 1 && parts[0] == "states":
		t.Action = "create-state"
	case len(parts) == 1 && parts[0] == "subjects":
		t.Action = "create-subject"
	case len(parts) >= 3 && parts[0] == "subjects":
		t.ResourceID = parts[1]
		switch parts[2] {
		case "transitions":
			if len(parts) == 4 && parts[3] == "preview" {
				return target{}, false
			}
			t.Action = "transition"
		case "reasons":
			t.Action = "update-reasons"
		default:
			t.Action = actionFromMethod(method)
		}
	default:
		t.Action = actionFromMethod(method)
	}
	return t, true
}

func actionFromMethod(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodPatch:
		return "patch"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusUnprocessableEntity:
		return OutcomeBlocked
	case code == http.StatusConflict:
		return OutcomeConflict
	case code >= 400 && code < 500:
		return OutcomeRejected
	default:
		return OutcomeFailure
	}
}
