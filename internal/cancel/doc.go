// Package cancel отслеживает активные run'ы и отменяет их по запросу.
//
// Registry хранит CancelFunc активных run'ов процесса. RedisBus рассылает
// запросы отмены через Redis pub/sub, чтобы отменить run, выполняемый
// другим экземпляром (воркером или API).
//
// Отмена срабатывает на ближайшей границе шагов walker'а.
package cancel
