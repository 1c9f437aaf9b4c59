package wizard

import "fmt"

// Step is the wizard's position in the booking flow.
type Step int

const (
	ChoosingService Step = iota
	ChoosingDateTime
	EnteringContactInfo
	Confirmed
)

func (s Step) String() string {
	switch s {
	case ChoosingService:
		return "choosing_service"
	case ChoosingDateTime:
		return "choosing_date_time"
	case EnteringContactInfo:
		return "entering_contact_info"
	case Confirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	switch string(b) {
	case "choosing_service":
		*s = ChoosingService
	case "choosing_date_time":
		*s = ChoosingDateTime
	case "entering_contact_info":
		*s = EnteringContactInfo
	case "confirmed":
		*s = Confirmed
	default:
		return fmt.Errorf("wizard: unknown step %q", string(b))
	}
	return nil
}

// Action is a user intent that may move the step pointer.
type Action int

const (
	ActionReloadServices Action = iota
	ActionSelectService
	ActionSelectDate
	ActionSelectSlot
	ActionNavigateMonth
	ActionContinueToForm
	ActionEditService
	ActionEditDateTime
	ActionUpdateContact
	ActionCustomerSearch
	ActionSubmit
	ActionSubmitSucceeded
)

func (a Action) String() string {
	switch a {
	case ActionReloadServices:
		return "reload_services"
	case ActionSelectService:
		return "select_service"
	case ActionSelectDate:
		return "select_date"
	case ActionSelectSlot:
		return "select_slot"
	case ActionNavigateMonth:
		return "navigate_month"
	case ActionContinueToForm:
		return "continue_to_form"
	case ActionEditService:
		return "edit_service"
	case ActionEditDateTime:
		return "edit_date_time"
	case ActionUpdateContact:
		return "update_contact"
	case ActionCustomerSearch:
		return "customer_search"
	case ActionSubmit:
		return "submit"
	case ActionSubmitSucceeded:
		return "submit_succeeded"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// transition returns the step reached by applying a in s. Preconditions that
// depend on the draft (a selected slot, a selectable date) are checked by the
// operations; this table only encodes which actions each step accepts.
func transition(s Step, a Action) (Step, error) {
	switch s {
	case ChoosingService:
		switch a {
		case ActionReloadServices:
			return ChoosingService, nil
		case ActionSelectService:
			return ChoosingDateTime, nil
		}
	case ChoosingDateTime:
		switch a {
		case ActionSelectDate, ActionSelectSlot, ActionNavigateMonth:
			return ChoosingDateTime, nil
		case ActionContinueToForm:
			return EnteringContactInfo, nil
		case ActionEditService:
			return ChoosingService, nil
		}
	case EnteringContactInfo:
		switch a {
		case ActionUpdateContact, ActionCustomerSearch, ActionSubmit:
			return EnteringContactInfo, nil
		case ActionSubmitSucceeded:
			return Confirmed, nil
		case ActionEditService:
			return ChoosingService, nil
		case ActionEditDateTime:
			return ChoosingDateTime, nil
		}
	case Confirmed:
	}
	return s, fmt.Errorf("%w: %s during %s", ErrInvalidTransition, a, s)
}
