// Package store содержит доступ к документному хранилищу для узлов
// mongodb_insert и mongodb_find.
//
// Реализации:
//   - MongoStore  — MongoDB через официальный драйвер
//   - MemoryStore — in-memory хранилище для CLI (--memory) и тестов
package store
