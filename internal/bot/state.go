package bot

import "sync"

// Шаги многошаговых диалогов.
const (
	stepRegisterContact = "register_contact"
	stepRegisterRole    = "register_role"

	stepTaskTitle       = "task_title"
	stepTaskDescription = "task_description"

	stepBookingMessage = "booking_message"

	stepCredentialsEmail    = "credentials_email"
	stepCredentialsPassword = "credentials_password"

	stepNameFirst = "name_first"
	stepNameLast  = "name_last"

	stepEmailNew = "email_new"

	stepPasswordCurrent = "password_current"
	stepPasswordNew     = "password_new"
)

// conversation — состояние незавершённого диалога с пользователем
// (мастер регистрации, создание задачи, запись на консультацию).
type conversation struct {
	Step string
	Data map[string]string
}

// stateStore хранит состояния диалогов по chat_id. Состояния живут
// только в памяти: после рестарта бота пользователь начинает диалог
// заново, что для мастеров из двух-трёх шагов приемлемо.
//
// Апдейты обрабатываются в параллельных горутинах, в том числе два
// подряд из одного чата, поэтому все чтения и записи идут под общим
// мьютексом, а current отдаёт копию: обработчик никогда не делит
// память диалога с конкурентным апдейтом.
type stateStore struct {
	mu     sync.Mutex
	states map[int64]*conversation
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[int64]*conversation)}
}

// begin начинает новый диалог, затирая предыдущий.
func (s *stateStore) begin(chatID int64, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[chatID] = &conversation{Step: step, Data: make(map[string]string)}
}

// current возвращает копию активного диалога или nil.
func (s *stateStore) current(chatID int64) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.states[chatID]
	if !ok {
		return nil
	}

	data := make(map[string]string, len(conv.Data))
	for k, v := range conv.Data {
		data[k] = v
	}

	return &conversation{Step: conv.Step, Data: data}
}

// set записывает значение в данные активного диалога; без диалога — no-op.
func (s *stateStore) set(chatID int64, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.states[chatID]; ok {
		conv.Data[key] = value
	}
}

// advance переводит диалог на следующий шаг.
func (s *stateStore) advance(chatID int64, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.states[chatID]; ok {
		conv.Step = step
	}
}

// finish завершает диалог.
func (s *stateStore) finish(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
}
