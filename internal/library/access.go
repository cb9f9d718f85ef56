package library

import (
	"fmt"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// Action names an operation subject to the authorization table.
type Action string

const (
	ActionAuthenticate Action = "authenticate"
	ActionAddEntry     Action = "entry_add"
	ActionEditEntry    Action = "entry_edit"
	ActionRemoveEntry  Action = "entry_remove"
	ActionListEntries  Action = "entry_list"
	ActionCheckout     Action = "checkout"
	ActionReturn       Action = "return"
	ActionViewOwnLoans Action = "loans_view_own"
	ActionViewAnyLoans Action = "loans_view_any"
)

// Librarians hold every patron capability plus catalog mutation.
var capabilities = map[entities.Role]map[Action]bool{
	entities.RolePatron: {
		ActionListEntries:  true,
		ActionCheckout:     true,
		ActionReturn:       true,
		ActionViewOwnLoans: true,
	},
	entities.RoleLibrarian: {
		ActionAddEntry:     true,
		ActionEditEntry:    true,
		ActionRemoveEntry:  true,
		ActionListEntries:  true,
		ActionCheckout:     true,
		ActionReturn:       true,
		ActionViewOwnLoans: true,
		ActionViewAnyLoans: true,
	},
}

// Can reports whether the principal's role grants the action.
func Can(p entities.Principal, action Action) bool {
	if p.ID == "" {
		return false
	}
	return capabilities[p.Role][action]
}

func authorize(p entities.Principal, action Action) error {
	if !Can(p, action) {
		role := string(p.Role)
		if role == "" {
			role = "anonymous"
		}
		return fmt.Errorf("%w: %s may not %s", ErrForbidden, role, action)
	}
	return nil
}
