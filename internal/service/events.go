package service

// EventBus fans lifecycle events out to organization, adopter and request
// channels. Publishing is best-effort: failures never fail the operation.
type EventBus interface {
	PublishOrganization(organizationID string, event map[string]interface{}) error
	PublishAdopter(userID string, event map[string]interface{}) error
	PublishAdoptionRequest(requestID string, event map[string]interface{}) error
}

type nopBus struct{}

func (nopBus) PublishOrganization(string, map[string]interface{}) error    { return nil }
func (nopBus) PublishAdopter(string, map[string]interface{}) error         { return nil }
func (nopBus) PublishAdoptionRequest(string, map[string]interface{}) error { return nil }
