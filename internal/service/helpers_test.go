package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/schema"
	"petadopt/internal/storage"
	"petadopt/internal/store/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const blobBase = "http://blobs.test/files/"

// memBlobs is an in-memory storage.Storage with failure injection.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	failPut func(name string) bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (b *memBlobs) Put(_ context.Context, name, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.failPut != nil && b.failPut(name) {
		return "", errors.New("blob store unavailable")
	}
	b.objects[name] = data
	return b.URL(name), nil
}

func (b *memBlobs) Get(_ context.Context, name string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlobs) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, name)
	return nil
}

func (b *memBlobs) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []storage.ObjectInfo
	for name, data := range b.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, storage.ObjectInfo{Name: name, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *memBlobs) URL(name string) string { return blobBase + name }

func (b *memBlobs) ObjectName(url string) (string, bool) {
	if !strings.HasPrefix(url, blobBase) {
		return "", false
	}
	return strings.TrimPrefix(url, blobBase), true
}

func (b *memBlobs) names() []string {
	objs, _ := b.List(context.Background(), "")
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.Name
	}
	return names
}

type cleanup struct {
	names []string
	delay time.Duration
}

type recordingJobs struct {
	mu            sync.Mutex
	notifications []string
	cleanups      []cleanup
	err           error
}

func (j *recordingJobs) ScheduleDecisionNotification(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.notifications = append(j.notifications, id)
	return j.err
}

func (j *recordingJobs) ScheduleBlobCleanup(names []string, delay time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.cleanups = append(j.cleanups, cleanup{names: names, delay: delay})
	return nil
}

type published struct {
	channel string
	event   map[string]interface{}
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) add(ch string, e map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{channel: ch, event: e})
	return nil
}

func (b *recordingBus) PublishOrganization(id string, e map[string]interface{}) error {
	return b.add("organization:"+id, e)
}

func (b *recordingBus) PublishAdopter(id string, e map[string]interface{}) error {
	return b.add("adopter:"+id, e)
}

func (b *recordingBus) PublishAdoptionRequest(id string, e map[string]interface{}) error {
	return b.add("adoption:"+id, e)
}

func (b *recordingBus) types(channel string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, p := range b.events {
		if p.channel == channel {
			out = append(out, p.event["type"].(string))
		}
	}
	return out
}

// world is a seeded store with one organization O (member staffO), a second
// organization Q (member staffQ), an animal P of O and an adopter.
type world struct {
	st       *memory.Store
	blobs    *memBlobs
	jobs     *recordingJobs
	bus      *recordingBus
	clock    time.Time
	adoption *AdoptionService

	orgO, orgQ string
	animalP    string
	staffO     model.Session
	staffQ     model.Session
	adopter    model.Session
	adopter2   model.Session
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	w := &world{
		st:      memory.New(),
		blobs:   newMemBlobs(),
		jobs:    &recordingJobs{},
		bus:     &recordingBus{},
		clock:   time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
		orgO:    "org-o",
		orgQ:    "org-q",
		animalP: "animal-p",
	}
	w.staffO = model.Session{UserID: "staff-o", Role: model.RoleProtetor, ActiveOrganizationID: w.orgO}
	w.staffQ = model.Session{UserID: "staff-q", Role: model.RoleProtetor, ActiveOrganizationID: w.orgQ}
	w.adopter = model.Session{UserID: "adopter-a", Role: model.RoleAdotante}
	w.adopter2 = model.Session{UserID: "adopter-b", Role: model.RoleAdotante}

	for _, u := range []model.User{
		{ID: "staff-o", Name: "Olga", Email: "olga@example.com", Role: model.RoleProtetor},
		{ID: "staff-q", Name: "Quim", Email: "quim@example.com", Role: model.RoleProtetor},
		{ID: "adopter-a", Name: "Ana", Email: "ana@example.com", Role: model.RoleAdotante},
		{ID: "adopter-b", Name: "Bia", Email: "bia@example.com", Role: model.RoleAdotante},
	} {
		u.CreatedAt = w.clock
		require.NoError(t, w.st.CreateUser(ctx, u))
	}
	for id, member := range map[string]string{w.orgO: "staff-o", w.orgQ: "staff-q"} {
		require.NoError(t, w.st.CreateOrganization(ctx, model.Organization{
			ID: id, Name: "Org " + id, Contact: "contato@example.com",
			MemberIDs: []string{member}, CreatedBy: member, CreatedAt: w.clock, UpdatedAt: w.clock,
		}))
	}
	orgO := w.orgO
	require.NoError(t, w.st.CreateAnimal(ctx, model.Animal{
		ID: w.animalP, Name: "Paçoca", Species: "cão", Age: model.Age{Value: 2, Unit: model.AgeYears},
		Sex: model.SexFemale, Status: model.AnimalForAdoption, OrganizationID: &orgO,
		CreatedAt: w.clock, UpdatedAt: w.clock,
	}))

	forms, err := schema.NewFormCompiler(16)
	require.NoError(t, err)

	w.adoption = NewAdoptionService(w.st, w.blobs, forms, w.bus, AdoptionConfig{MaxPhotoMB: 5, WithdrawnPhotoRetention: 48 * time.Hour}, zap.NewNop())
	w.adoption.SetJobClient(w.jobs)
	w.adoption.now = w.tick
	return w
}

// tick advances the clock one second per call so records order deterministically.
func (w *world) tick() time.Time {
	w.clock = w.clock.Add(time.Second)
	return w.clock
}

func validInput(animalID, orgID string) CreateAdoptionInput {
	return CreateAdoptionInput{
		AnimalID:       animalID,
		OrganizationID: orgID,
		PersonalInfo: model.PersonalInfo{
			FullName: "Ana Souza", Email: "ana@example.com", BirthDate: "1990-04-12", Phone: "(11) 98765-4321",
		},
		Address: model.RequestAddress{
			Street: "Rua das Flores", Number: "123", Zip: "01234-567", District: "Centro", City: "São Paulo", State: "SP",
		},
		HomeInfo: model.HomeInfo{
			DwellingType: "casa", AnimalsAllowed: true, HasEnclosure: true,
			OtherPetsDescription: "um gato", PriorPetsHistory: "sempre tive cães",
			TerritorialConflictPlan: "adaptação gradual", AwareOfLifespan: true, FamilyAgrees: true, AgreesToSendUpdates: true,
		},
		Declaration: true,
	}
}

func photo(name, contentType string, size int) storage.Upload {
	return storage.Upload{Name: name, ContentType: contentType, Size: int64(size), Body: bytes.NewReader(make([]byte, size))}
}

func threePhotos() []storage.Upload {
	return []storage.Upload{
		photo("sala.jpg", "image/jpeg", 1024),
		photo("quintal.png", "image/png", 2048),
		photo("muro.webp", "image/webp", 512),
	}
}

func (w *world) submit(t *testing.T) *model.AdoptionRequest {
	t.Helper()
	req, err := w.adoption.CreateRequest(context.Background(), w.adopter, validInput(w.animalP, w.orgO), threePhotos())
	require.NoError(t, err)
	return req
}
