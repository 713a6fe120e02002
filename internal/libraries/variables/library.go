package variables

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"karte/internal/application/dto"
	"karte/internal/application/modules"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
	apperrors "karte/internal/shared_kernel/errors"

	"github.com/tidwall/gjson"
)

const (
	LibraryName         = "variables"
	LibraryVersion      = "2.9.0"
	RepositoryNamespace = "Variables_"

	serviceActionRemoteConfig = "remote_config"
	actionTypeControl         = "control"
)

// Library stores remote-config variables delivered in collection responses.
// Receive runs on the dispatcher loop; the public methods may be called from
// any goroutine.
type Library struct {
	mu         sync.Mutex
	host       modules.Host
	repository portsout.KeyValueRepository
	logger     *log.Logger
}

var (
	_ modules.Library      = (*Library)(nil)
	_ modules.ActionModule = (*Library)(nil)
	_ modules.UserModule   = (*Library)(nil)
)

func New() *Library {
	return &Library{}
}

func (l *Library) Name() string {
	return LibraryName
}

func (l *Library) Version() string {
	return LibraryVersion
}

func (l *Library) IsPublic() bool {
	return true
}

func (l *Library) Configure(host modules.Host) {
	l.mu.Lock()
	l.host = host
	l.repository = host.Repository(RepositoryNamespace)
	l.logger = host.Logger()
	l.mu.Unlock()
	host.RegisterModule(l)
}

func (l *Library) Unconfigure(host modules.Host) {
	host.UnregisterModule(LibraryName)
	l.mu.Lock()
	l.host = nil
	l.mu.Unlock()
}

// Fetch asks the collection endpoint for the visitor's variables. The
// response is applied by Receive before completion runs.
func (l *Library) Fetch(ctx context.Context, completion func(delivered bool)) *apperrors.AppError {
	host, _ := l.state()
	if host == nil {
		if completion != nil {
			go completion(false)
		}
		return notConfigured()
	}
	host.Track(ctx, entities.NewEvent(
		entities.EventNameFetchVariables,
		nil,
		entities.WithRetryable(false),
	), completion)
	return nil
}

// Get returns the stored variable or an undefined one.
func (l *Library) Get(ctx context.Context, name string) Variable {
	_, repository := l.state()
	if repository == nil {
		return emptyVariable(name)
	}
	raw, exists, appErr := repository.Get(ctx, name)
	if appErr != nil {
		l.logf("variable load failed name=%s code=%s", name, appErr.Code)
		return emptyVariable(name)
	}
	if !exists {
		return emptyVariable(name)
	}
	variable, err := deserializeVariable(name, raw)
	if err != nil {
		l.logf("variable decode failed name=%s error=%v", name, err)
		return emptyVariable(name)
	}
	return variable
}

// TrackOpen reports that the variables were shown, once per campaign.
func (l *Library) TrackOpen(ctx context.Context, variables []Variable, values map[string]any) *apperrors.AppError {
	return l.trackMessages(ctx, entities.EventNameMessageOpen, variables, values)
}

// TrackClick reports that the variables were acted on, once per campaign.
func (l *Library) TrackClick(ctx context.Context, variables []Variable, values map[string]any) *apperrors.AppError {
	return l.trackMessages(ctx, entities.EventNameMessageClick, variables, values)
}

func (l *Library) trackMessages(ctx context.Context, eventName string, variables []Variable, values map[string]any) *apperrors.AppError {
	host, _ := l.state()
	if host == nil {
		return notConfigured()
	}
	sent := map[string]struct{}{}
	for _, variable := range variables {
		if variable.CampaignID == "" || variable.ShortenID == "" {
			continue
		}
		if _, exists := sent[variable.CampaignID]; exists {
			continue
		}
		sent[variable.CampaignID] = struct{}{}
		host.Track(ctx, entities.NewMessageEvent(
			eventName,
			variable.CampaignID,
			variable.ShortenID,
			values,
			LibraryName,
		), nil)
	}
	return nil
}

func (l *Library) Receive(response dto.TrackResponse, request dto.TrackRequest) {
	host, repository := l.state()
	if host == nil || repository == nil {
		return
	}
	ctx := context.Background()

	if request.Contains(entities.EventNameFetchVariables) {
		if appErr := repository.RemoveAll(ctx); appErr != nil {
			l.logf("variables clear failed code=%s", appErr.Code)
		}
	}

	messages := parseMessages(response.Messages)
	for i := len(messages) - 1; i >= 0; i-- {
		message := messages[i]
		if !message.isControlGroup {
			for _, inlined := range message.variables {
				variable := newVariable(inlined.name, message.campaignID, message.shortenID, inlined.value)
				serialized, err := variable.serialize()
				if err != nil {
					l.logf("variable encode failed name=%s error=%v", inlined.name, err)
					continue
				}
				if appErr := repository.Put(ctx, inlined.name, serialized); appErr != nil {
					l.logf("variable write failed name=%s code=%s", inlined.name, appErr.Code)
					continue
				}
				l.logf(
					"variable written name=%s campaign_id=%s shorten_id=%s",
					inlined.name,
					message.campaignID,
					message.shortenID,
				)
			}
		}
		host.Track(ctx, entities.NewMessageEvent(
			entities.EventNameMessageReady,
			message.campaignID,
			message.shortenID,
			nil,
			LibraryName,
		), nil)
	}
}

func (l *Library) Reset() {}

func (l *Library) ResetAll() {}

func (l *Library) RenewVisitorID(_ string, _ string) {
	_, repository := l.state()
	if repository == nil {
		return
	}
	if appErr := repository.RemoveAll(context.Background()); appErr != nil {
		l.logf("variables clear failed code=%s", appErr.Code)
	}
}

func (l *Library) state() (modules.Host, portsout.KeyValueRepository) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.host, l.repository
}

func (l *Library) logf(format string, args ...any) {
	l.mu.Lock()
	logger := l.logger
	l.mu.Unlock()
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}

type inlinedVariable struct {
	name  string
	value string
}

type variableMessage struct {
	campaignID     string
	shortenID      string
	isControlGroup bool
	variables      []inlinedVariable
}

// parseMessages keeps enabled remote_config messages in response order.
func parseMessages(raw []json.RawMessage) []variableMessage {
	messages := make([]variableMessage, 0, len(raw))
	for _, item := range raw {
		if !gjson.ValidBytes(item) {
			continue
		}
		parsed := gjson.ParseBytes(item)
		campaignID := parsed.Get("campaign.campaign_id")
		shortenID := parsed.Get("action.shorten_id")
		if campaignID.Type == gjson.Null || shortenID.Type == gjson.Null {
			continue
		}
		if parsed.Get("campaign.service_action_type").String() != serviceActionRemoteConfig {
			continue
		}

		message := variableMessage{
			campaignID:     campaignID.String(),
			shortenID:      shortenID.String(),
			isControlGroup: parsed.Get("action.type").String() == actionTypeControl,
		}
		parsed.Get("action.content.inlined_variables").ForEach(func(_, entry gjson.Result) bool {
			name := entry.Get("name")
			value := entry.Get("value")
			if name.String() == "" || value.Type == gjson.Null {
				return true
			}
			message.variables = append(message.variables, inlinedVariable{
				name:  name.String(),
				value: value.String(),
			})
			return true
		})
		messages = append(messages, message)
	}
	return messages
}

func notConfigured() *apperrors.AppError {
	return apperrors.NewConflict(
		"variables_not_configured",
		"variables library is not configured",
		nil,
	)
}

var _ portsin.VariablesService = (*Library)(nil)

func (l *Library) FetchVariables(ctx context.Context, command dto.FetchVariablesCommand) *apperrors.AppError {
	return l.Fetch(ctx, command.Completion)
}

// GetVariables resolves each requested name; unknown names come back
// undefined rather than as an error.
func (l *Library) GetVariables(ctx context.Context, query dto.GetVariablesQuery) (dto.GetVariablesOutput, *apperrors.AppError) {
	if len(query.Names) == 0 {
		return dto.GetVariablesOutput{}, apperrors.NewValidation(
			"variable_names_required",
			"at least one variable name is required",
			map[string]any{"field": "name"},
		)
	}
	output := dto.GetVariablesOutput{Variables: make([]dto.VariableOutput, 0, len(query.Names))}
	for _, name := range query.Names {
		variable := l.Get(ctx, name)
		output.Variables = append(output.Variables, dto.VariableOutput{
			Name:       variable.Name,
			Defined:    variable.IsDefined(),
			Value:      variable.String(""),
			CampaignID: variable.CampaignID,
			ShortenID:  variable.ShortenID,
		})
	}
	return output, nil
}
