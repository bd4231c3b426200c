package services

// RequestContext - данные текущего запроса, которые раньше брались из глобальной сессии:
// ключ анонимной сессии и признак авторизованного сотрудника
type RequestContext struct {
	SessionKey    string
	Authenticated bool
	StaffID       string
}

// Anonymous - запрос от покупателя (не от сотрудника)
func (rc RequestContext) Anonymous() bool {
	return !rc.Authenticated
}

// requireAnonymous - операции покупателя запрещены сотрудникам и без ключа сессии
func requireAnonymous(rc RequestContext) error {
	if rc.Authenticated {
		return ErrForbidden
	}
	if rc.SessionKey == "" {
		return ErrNotFound
	}
	return nil
}
