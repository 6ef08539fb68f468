package action

import "fmt"

// Sequence is an ordered list of actions; order is replay and compile order.
// A Sequence is not safe for concurrent use; owners serialize access and hand
// consumers a Clone.
type Sequence struct {
	Origin  string   `json:"origin,omitempty" yaml:"origin,omitempty"`
	Actions []Action `json:"actions" yaml:"actions"`
}

// Len returns the number of actions
func (s *Sequence) Len() int { return len(s.Actions) }

// Append adds an action at the end
func (s *Sequence) Append(a Action) {
	s.Actions = append(s.Actions, a)
}

// RemoveAt deletes the action at index i
func (s *Sequence) RemoveAt(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.Actions = append(s.Actions[:i], s.Actions[i+1:]...)
	return nil
}

// ReplaceAt overwrites the action at index i
func (s *Sequence) ReplaceAt(i int, a Action) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.Actions[i] = a
	return nil
}

// Move relocates the action at from so it ends up at index to
func (s *Sequence) Move(from, to int) error {
	if err := s.check(from); err != nil {
		return err
	}
	if err := s.check(to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	a := s.Actions[from]
	s.Actions = append(s.Actions[:from], s.Actions[from+1:]...)
	s.Actions = append(s.Actions[:to], append([]Action{a}, s.Actions[to:]...)...)
	return nil
}

// Reset replaces every action
func (s *Sequence) Reset(actions []Action) {
	s.Actions = append([]Action(nil), actions...)
}

// Annotate attaches an image reference to the action with the given ID
func (s *Sequence) Annotate(id, image string) bool {
	for i := range s.Actions {
		if s.Actions[i].ID == id {
			s.Actions[i].Image = image
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (s *Sequence) Clone() *Sequence {
	c := &Sequence{Origin: s.Origin, Actions: make([]Action, len(s.Actions))}
	for i, a := range s.Actions {
		c.Actions[i] = a.Clone()
	}
	return c
}

// Validate checks every action
func (s *Sequence) Validate() error {
	for i, a := range s.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Sequence) check(i int) error {
	if i < 0 || i >= len(s.Actions) {
		return fmt.Errorf("index %d out of range [0, %d)", i, len(s.Actions))
	}
	return nil
}
